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
	"github.com/kadirpekel/ragmark/pkg/retriever"
)

// AnswerGenerator produces one answer per configured model, optionally
// refreshing the retrieved chunks first.
type AnswerGenerator struct {
	TextGenerator
	retriever retriever.Retriever
}

// NewAnswerGenerator builds the stage. The retriever may be nil, in
// which case the chunks already on the record (if any) are used as is.
func NewAnswerGenerator(models []llm.LLM, r retriever.Retriever) (*AnswerGenerator, error) {
	tg, err := newTextGenerator(models)
	if err != nil {
		return nil, err
	}
	return &AnswerGenerator{TextGenerator: tg, retriever: r}, nil
}

func (g *AnswerGenerator) Name() string { return "answers" }

func (g *AnswerGenerator) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	if g.retriever != nil {
		if len(qa.Chunks.Items) == 0 || (opts.StartFrom <= llm.StartChunks && !opts.MissingOnly) {
			qa.Chunks.Items = nil
			if err := g.retriever.Retrieve(ctx, qa); err != nil {
				return fmt.Errorf("retrieving chunks: %w", err)
			}
		} else {
			slog.Debug("reusing existing chunks", "count", len(qa.Chunks.Items))
		}
	}

	in := prompter.Inputs{Question: &qa.Question, Chunks: qa.Chunks}
	fresh := expe.NewAnswers()
	for _, m := range g.selected(opts.OnlyLLMs) {
		prev := qa.AnswerByModel(m.Name())
		var prevObj expe.WithLLMAnswer
		if prev != nil {
			prevObj = prev
		}

		result, err := llm.Generate(ctx, m, expe.NewAnswer(), prevObj, qa, opts.StartFrom, opts.MissingOnly, in)
		if err != nil {
			return fmt.Errorf("answering with %s: %w", m.Name(), err)
		}
		answer := result.(*expe.Answer)
		// A human verdict on the previous answer survives regeneration.
		if prev != nil && answer != prev && prev.Eval != nil && prev.Eval.Human != nil {
			if answer.Eval == nil {
				answer.Eval = expe.NewEval()
			}
			answer.Eval.Human = prev.Eval.Human
		}
		fresh.Items = append(fresh.Items, answer)
	}
	qa.Answers = fresh
	return nil
}
