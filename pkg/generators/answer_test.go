package generators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/llm"
)

// stubRetriever fills a fixed chunk and counts calls.
type stubRetriever struct {
	calls int
	err   error
}

func (s *stubRetriever) Name() string { return "stub" }

func (s *stubRetriever) Retrieve(ctx context.Context, qa *expe.QA) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	qa.Chunks.Items = []*expe.Chunk{
		{Text: "retrieved context", Meta: expe.Meta{expe.MetaDisplayName: "Doc A", expe.MetaPageNumber: 1}},
	}
	return nil
}

func ptr(f float64) *float64 { return &f }

func TestAnswerGeneratorHappyPath(t *testing.T) {
	m := newStubLLM(t, "model-a", "the answer")
	r := &stubRetriever{}
	g, err := NewAnswerGenerator([]llm.LLM{m}, r)
	require.NoError(t, err)

	qa := expe.NewQA("what gives?")
	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{}))

	assert.Equal(t, 1, r.calls)
	require.Len(t, qa.Chunks.Items, 1)
	require.Len(t, qa.Answers.Items, 1)
	answer := qa.Answers.Items[0]
	assert.Equal(t, "the answer", answer.Text)
	require.NotNil(t, answer.LLMAnswer)
	assert.Equal(t, "model-a", answer.LLMAnswer.Name)
	require.NotNil(t, answer.LLMAnswer.Prompt)
}

func TestAnswerGeneratorOneAnswerPerModel(t *testing.T) {
	a := newStubLLM(t, "model-a", "answer a")
	b := newStubLLM(t, "model-b", "answer b")
	g, err := NewAnswerGenerator([]llm.LLM{a, b}, nil)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{}))
	require.Len(t, qa.Answers.Items, 2)
	assert.Equal(t, "answer a", qa.Answers.Items[0].Text)
	assert.Equal(t, "answer b", qa.Answers.Items[1].Text)
}

func TestAnswerGeneratorOnlyLLMs(t *testing.T) {
	a := newStubLLM(t, "model-a", "answer a")
	b := newStubLLM(t, "model-b", "answer b")
	g, err := NewAnswerGenerator([]llm.LLM{a, b}, nil)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{OnlyLLMs: []string{"model-b"}}))
	require.Len(t, qa.Answers.Items, 1)
	assert.Equal(t, "answer b", qa.Answers.Items[0].Text)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestAnswerGeneratorCopiesHumanEval(t *testing.T) {
	m := newStubLLM(t, "model-a", "regenerated")
	g, err := NewAnswerGenerator([]llm.LLM{m}, nil)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	prev := expe.NewAnswer()
	prev.Text = "old"
	prev.LLMAnswer = &expe.LLMAnswer{Text: "old", Meta: expe.Meta{}, Name: "model-a", Prompt: &expe.Prompt{User: "q"}}
	prev.Eval.Human = ptr(1.0)
	qa.Answers.Items = []*expe.Answer{prev}

	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{StartFrom: llm.StartLLM}))
	require.Len(t, qa.Answers.Items, 1)
	fresh := qa.Answers.Items[0]
	assert.Equal(t, "regenerated", fresh.Text)
	require.NotNil(t, fresh.Eval.Human)
	assert.Equal(t, 1.0, *fresh.Eval.Human)
}

func TestAnswerGeneratorMissingOnlyReuses(t *testing.T) {
	m := newStubLLM(t, "model-a", "should not be used")
	g, err := NewAnswerGenerator([]llm.LLM{m}, nil)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	prev := expe.NewAnswer()
	prev.Text = "kept"
	prev.LLMAnswer = &expe.LLMAnswer{Text: "kept", Meta: expe.Meta{}, Name: "model-a", Prompt: &expe.Prompt{User: "q"}}
	qa.Answers.Items = []*expe.Answer{prev}

	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{MissingOnly: true}))
	require.Len(t, qa.Answers.Items, 1)
	assert.Same(t, prev, qa.Answers.Items[0])
	assert.Equal(t, int32(0), m.calls.Load())
}

func TestAnswerGeneratorChunkReuse(t *testing.T) {
	m := newStubLLM(t, "model-a", "answer")
	r := &stubRetriever{}
	g, err := NewAnswerGenerator([]llm.LLM{m}, r)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	qa.Chunks.Items = []*expe.Chunk{{Text: "existing", Meta: expe.Meta{}}}

	// Resuming from the llm step keeps the chunks that are there.
	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{StartFrom: llm.StartLLM}))
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, "existing", qa.Chunks.Items[0].Text)

	// A full run refreshes them.
	require.NoError(t, g.ProcessQA(context.Background(), qa, Options{}))
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "retrieved context", qa.Chunks.Items[0].Text)
}

func TestAnswerGeneratorCompletionFailure(t *testing.T) {
	m := newStubLLM(t, "model-a", "")
	m.err = errors.New("terminal")
	g, err := NewAnswerGenerator([]llm.LLM{m}, nil)
	require.NoError(t, err)

	qa := expe.NewQA("q")
	err = g.ProcessQA(context.Background(), qa, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model-a")
}
