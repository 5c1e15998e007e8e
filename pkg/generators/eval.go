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
	"slices"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/llm"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// EvalGenerator scores every answer of a QA against its facts.
type EvalGenerator struct {
	TextGenerator
}

func NewEvalGenerator(models []llm.LLM) (*EvalGenerator, error) {
	tg, err := newTextGenerator(models)
	if err != nil {
		return nil, err
	}
	return &EvalGenerator{TextGenerator: tg}, nil
}

func (g *EvalGenerator) Name() string { return "evals" }

func (g *EvalGenerator) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	if len(qa.Answers.Items) == 0 {
		slog.Error("no answers to evaluate", "question", qa.Question.Text)
		return nil
	}
	if len(qa.Facts.Items) == 0 {
		slog.Error("no facts to evaluate against", "question", qa.Question.Text)
		return nil
	}

	m := g.primary()
	for _, answer := range qa.Answers.Items {
		if answer.Text == "" {
			continue
		}
		// Anonymous answers (no completion record, e.g. human-written
		// ones) are always evaluated; the model filter only applies to
		// generated answers.
		if answer.LLMAnswer != nil && len(opts.OnlyLLMs) > 0 &&
			!slices.Contains(opts.OnlyLLMs, answer.LLMAnswer.Name) &&
			!slices.Contains(opts.OnlyLLMs, answer.LLMAnswer.FullName) {
			continue
		}

		prevEval := answer.Eval
		var prevObj expe.WithLLMAnswer
		if prevEval != nil {
			prevObj = prevEval
		}
		in := prompter.Inputs{Answer: answer, Facts: qa.Facts}
		result, err := llm.Generate(ctx, m, expe.NewEval(), prevObj, qa, opts.StartFrom, opts.MissingOnly, in)
		if err != nil {
			return fmt.Errorf("evaluating answer with %s: %w", m.Name(), err)
		}
		eval := result.(*expe.Eval)
		if prevEval != nil && eval != prevEval && prevEval.Human != nil {
			eval.Human = prevEval.Human
		}
		answer.Eval = eval
	}
	return nil
}
