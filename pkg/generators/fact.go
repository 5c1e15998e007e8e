// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package generators

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/llm"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// FactGenerator distills the reference facts from the human-validated
// answer of each QA.
type FactGenerator struct {
	TextGenerator
}

func NewFactGenerator(models []llm.LLM) (*FactGenerator, error) {
	tg, err := newTextGenerator(models)
	if err != nil {
		return nil, err
	}
	return &FactGenerator{TextGenerator: tg}, nil
}

func (g *FactGenerator) Name() string { return "facts" }

// ProcessQA generates facts from the first answer a human scored 1.0.
// A QA without such an answer is skipped, not failed: validation simply
// has not reached it yet.
func (g *FactGenerator) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	var source *expe.Answer
	for _, a := range qa.Answers.Items {
		if a.Eval != nil && a.Eval.Human != nil && *a.Eval.Human == 1.0 {
			source = a
			break
		}
	}
	if source == nil {
		slog.Debug("no human-validated answer, skipping fact generation",
			"question", qa.Question.Text)
		return nil
	}

	m := g.primary()
	in := prompter.Inputs{Question: &qa.Question, Answer: source}
	result, err := llm.Generate(ctx, m, expe.NewFacts(), qa.Facts, qa, opts.StartFrom, opts.MissingOnly, in)
	if err != nil {
		return fmt.Errorf("generating facts with %s: %w", m.Name(), err)
	}
	qa.Facts = result.(*expe.Facts)
	return nil
}
