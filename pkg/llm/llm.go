// Package llm drives text generation: the LLM interface, the
// OpenAI-compatible reference driver, and the per-item step machine
// shared by all three stages.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// LLM is one configured model bound to a prompter.
type LLM interface {
	// Name is the short model name used in config and answer matching.
	Name() string
	Prompter() prompter.Prompter
	Complete(ctx context.Context, p *expe.Prompt) (*expe.LLMAnswer, error)
}

// Generate runs the prompt / llm / post-process steps for one item.
// cur is the fresh record being built, prev the record from a previous
// run (nil when there is none). Each step reuses prev's output unless
// there is nothing to reuse or the resume point forces a recompute.
// The returned record is either cur or prev, depending on whether the
// completion was regenerated. A completion failure returns an error and
// no record.
func Generate(ctx context.Context, m LLM, cur, prev expe.WithLLMAnswer, qa *expe.QA,
	startFrom StartFrom, missingOnly bool, in prompter.Inputs) (expe.WithLLMAnswer, error) {

	log := slog.With("model", m.Name(), "prompter", m.Prompter().Name())

	prevAnswer := priorAnswer(prev)

	var p *expe.Prompt
	if prevAnswer == nil || prevAnswer.Prompt == nil || (startFrom <= StartPrompt && !missingOnly) {
		var err error
		p, err = m.Prompter().BuildPrompt(in)
		if err != nil {
			return nil, fmt.Errorf("llm: building prompt: %w", err)
		}
	} else {
		log.Debug("reusing previous prompt")
		p = prevAnswer.Prompt
	}

	result := prev
	if prevAnswer == nil || (startFrom <= StartLLM && !missingOnly) {
		answer, err := m.Complete(ctx, p)
		if err != nil {
			log.Warn("completion failed", "error", err)
			return nil, fmt.Errorf("llm: completing with %s: %w", m.Name(), err)
		}
		answer.Prompt = p
		answer.Prompt.Prompter = m.Prompter().Name()
		cur.SetLLMAnswer(answer)
		result = cur
	} else {
		log.Debug("reusing previous completion")
	}

	if priorAnswer(result) != nil && (prevAnswer == nil || (!missingOnly && startFrom <= StartPostProcess)) {
		m.Prompter().PostProcess(qa, result)
	}
	return result, nil
}

func priorAnswer(obj expe.WithLLMAnswer) *expe.LLMAnswer {
	if obj == nil {
		return nil
	}
	return obj.GetLLMAnswer()
}
