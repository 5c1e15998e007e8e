package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// countingPrompter records how often each phase ran.
type countingPrompter struct {
	built     int
	processed int
}

func (p *countingPrompter) Name() string { return "counting" }

func (p *countingPrompter) BuildPrompt(in prompter.Inputs) (*expe.Prompt, error) {
	p.built++
	return &expe.Prompt{User: in.Question.Text}, nil
}

func (p *countingPrompter) PostProcess(qa *expe.QA, target expe.WithLLMAnswer) {
	p.processed++
	if a, ok := target.(*expe.Answer); ok && a.LLMAnswer != nil {
		a.Text = a.LLMAnswer.Text
	}
}

type stubLLM struct {
	prompter *countingPrompter
	calls    int
	reply    string
	err      error
}

func (s *stubLLM) Name() string                { return "stub-model" }
func (s *stubLLM) Prompter() prompter.Prompter { return s.prompter }

func (s *stubLLM) Complete(ctx context.Context, p *expe.Prompt) (*expe.LLMAnswer, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &expe.LLMAnswer{Text: s.reply, Meta: expe.Meta{}, Name: s.Name(), FullName: s.Name() + "-v1"}, nil
}

func newStub(reply string) *stubLLM {
	return &stubLLM{prompter: &countingPrompter{}, reply: reply}
}

func answerInputs(qa *expe.QA) prompter.Inputs {
	return prompter.Inputs{Question: &qa.Question, Chunks: qa.Chunks}
}

func prevAnswerFor(m LLM) *expe.Answer {
	prev := expe.NewAnswer()
	prev.Text = "old text"
	prev.LLMAnswer = &expe.LLMAnswer{
		Text:   "old text",
		Meta:   expe.Meta{},
		Name:   m.Name(),
		Prompt: &expe.Prompt{User: "old prompt"},
	}
	return prev
}

func TestGenerateFresh(t *testing.T) {
	m := newStub("fresh reply")
	qa := expe.NewQA("the question")
	cur := expe.NewAnswer()

	result, err := Generate(context.Background(), m, cur, nil, qa, StartBeginning, false, answerInputs(qa))
	require.NoError(t, err)
	require.Same(t, cur, result.(*expe.Answer))
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 1, m.prompter.built)
	assert.Equal(t, 1, m.prompter.processed)
	assert.Equal(t, "fresh reply", cur.Text)
	require.NotNil(t, cur.LLMAnswer.Prompt)
	assert.Equal(t, "the question", cur.LLMAnswer.Prompt.User)
	assert.Equal(t, "counting", cur.LLMAnswer.Prompt.Prompter)
}

func TestGenerateMissingOnlySkipsExisting(t *testing.T) {
	m := newStub("new reply")
	qa := expe.NewQA("q")
	prev := prevAnswerFor(m)

	result, err := Generate(context.Background(), m, expe.NewAnswer(), prev, qa, StartBeginning, true, answerInputs(qa))
	require.NoError(t, err)
	require.Same(t, prev, result.(*expe.Answer))
	assert.Equal(t, 0, m.calls, "existing answers are not regenerated in missing-only mode")
	assert.Equal(t, 0, m.prompter.processed)
	assert.Equal(t, "old text", prev.Text)
}

func TestGenerateMissingOnlyFillsGaps(t *testing.T) {
	m := newStub("new reply")
	qa := expe.NewQA("q")
	cur := expe.NewAnswer()

	result, err := Generate(context.Background(), m, cur, nil, qa, StartLLM, true, answerInputs(qa))
	require.NoError(t, err)
	require.Same(t, cur, result.(*expe.Answer))
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, "new reply", cur.Text)
}

func TestGenerateStartFromPostProcess(t *testing.T) {
	m := newStub("unused")
	qa := expe.NewQA("q")
	prev := prevAnswerFor(m)
	prev.Text = "stale post-processing"

	result, err := Generate(context.Background(), m, expe.NewAnswer(), prev, qa, StartPostProcess, false, answerInputs(qa))
	require.NoError(t, err)
	require.Same(t, prev, result.(*expe.Answer))
	assert.Equal(t, 0, m.calls, "completion is reused")
	assert.Equal(t, 0, m.prompter.built, "prompt is reused")
	assert.Equal(t, 1, m.prompter.processed, "post-processing reruns")
	assert.Equal(t, "old text", prev.Text)
}

func TestGenerateStartFromLLMRegenerates(t *testing.T) {
	m := newStub("regenerated")
	qa := expe.NewQA("q")
	prev := prevAnswerFor(m)
	cur := expe.NewAnswer()

	result, err := Generate(context.Background(), m, cur, prev, qa, StartLLM, false, answerInputs(qa))
	require.NoError(t, err)
	require.Same(t, cur, result.(*expe.Answer))
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 0, m.prompter.built, "prompt step is before the resume point")
	assert.Equal(t, "old prompt", cur.LLMAnswer.Prompt.User)
	assert.Equal(t, "regenerated", cur.Text)
}

func TestGenerateRebuildsMissingPrompt(t *testing.T) {
	m := newStub("unused")
	qa := expe.NewQA("q")
	prev := prevAnswerFor(m)
	prev.LLMAnswer.Prompt = nil

	_, err := Generate(context.Background(), m, expe.NewAnswer(), prev, qa, StartPostProcess, false, answerInputs(qa))
	require.NoError(t, err)
	assert.Equal(t, 1, m.prompter.built, "a missing prompt is rebuilt regardless of the resume point")
	assert.Equal(t, 0, m.calls)
}

func TestGenerateCompletionFailure(t *testing.T) {
	m := newStub("")
	m.err = errors.New("boom")
	qa := expe.NewQA("q")

	result, err := Generate(context.Background(), m, expe.NewAnswer(), nil, qa, StartBeginning, false, answerInputs(qa))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, m.prompter.processed)
}

func TestParseStartFrom(t *testing.T) {
	tests := []struct {
		in   string
		want StartFrom
		ok   bool
	}{
		{"", StartBeginning, true},
		{"beginning", StartBeginning, true},
		{"chunks", StartChunks, true},
		{"prompt", StartPrompt, true},
		{"llm", StartLLM, true},
		{"post_process", StartPostProcess, true},
		{"bogus", StartBeginning, false},
	}
	for _, tc := range tests {
		got, err := ParseStartFrom(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got, tc.in)
		} else {
			require.Error(t, err, tc.in)
		}
	}
}
