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

// Package generators runs one generation stage over a whole experiment
// record: every QA is processed in its own goroutine, failures are
// snapshotted without stopping the siblings, and long runs can save
// interim checkpoints.
package generators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/llm"
)

// Options controls one stage run.
type Options struct {
	StartFrom   llm.StartFrom
	MissingOnly bool
	OnlyLLMs    []string
	SaveEvery   int
}

// Processor is one stage's per-QA work.
type Processor interface {
	Name() string
	ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error
}

// TextGenerator holds the ordered model list a stage draws from.
type TextGenerator struct {
	llms []llm.LLM
}

func newTextGenerator(models []llm.LLM) (TextGenerator, error) {
	if len(models) == 0 {
		return TextGenerator{}, errors.New("generators: at least one LLM is required")
	}
	return TextGenerator{llms: models}, nil
}

// primary is the model single-completion stages (facts, evals) use.
func (g TextGenerator) primary() llm.LLM { return g.llms[0] }

// selected filters the model list down to the given short names.
// An empty filter selects everything.
func (g TextGenerator) selected(only []string) []llm.LLM {
	if len(only) == 0 {
		return g.llms
	}
	var out []llm.LLM
	for _, m := range g.llms {
		for _, name := range only {
			if m.Name() == name {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Run processes every QA of the record concurrently with p. A QA whose
// processing fails is logged and leaves a failure snapshot named
// Stopped_at_<i>_of_<N>_<stem> next to the record's file; the other QAs
// keep running. With SaveEvery > 0 the record is also checkpointed
// under its canonical name every SaveEvery completed QAs.
//
// Snapshots marshal the whole record, so every task mutates its QA
// under the read side of stateMu and the snapshot writers take the
// write side: a save only runs while no sibling is mid-mutation.
func Run(ctx context.Context, e *expe.Expe, p Processor, opts Options) error {
	total := e.Len()
	var stateMu sync.RWMutex
	var completed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for i, qa := range e.Items {
		qa := qa
		num := i + 1
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := slog.With("stage", p.Name(), "question", fmt.Sprintf("%d/%d", num, total))
			log.Info("processing question", "text", qa.Question.Text)

			err := func() (err error) {
				stateMu.RLock()
				defer stateMu.RUnlock()
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				return p.ProcessQA(ctx, qa, opts)
			}()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Error("question failed, snapshotting", "error", err)
				stateMu.Lock()
				if _, serr := e.SaveTemp(fmt.Sprintf("Stopped_at_%d_of_%d_", num, total)); serr != nil {
					log.Error("failure snapshot not written", "error", serr)
				}
				stateMu.Unlock()
				return nil
			}

			if done := completed.Add(1); opts.SaveEvery > 0 && int(done)%opts.SaveEvery == 0 {
				stateMu.Lock()
				if _, serr := e.Save(); serr != nil {
					log.Warn("interim save failed", "error", serr)
				} else {
					log.Debug("interim save", "completed", done)
				}
				stateMu.Unlock()
			}
			return nil
		})
	}
	return g.Wait()
}
