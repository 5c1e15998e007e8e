package generators

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/llm"
	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// stubLLM answers with a canned reply through the base answer prompter.
type stubLLM struct {
	name  string
	reply string
	err   error
	calls atomic.Int32
	p     prompter.Prompter
}

func newStubLLM(t *testing.T, name, reply string) *stubLLM {
	t.Helper()
	p, err := prompter.New(prompter.AnswerBaseName)
	require.NoError(t, err)
	return &stubLLM{name: name, reply: reply, p: p}
}

func (s *stubLLM) Name() string                { return s.name }
func (s *stubLLM) Prompter() prompter.Prompter { return s.p }

func (s *stubLLM) Complete(ctx context.Context, p *expe.Prompt) (*expe.LLMAnswer, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &expe.LLMAnswer{Text: s.reply, Meta: expe.Meta{}, Name: s.name, FullName: s.name + "-v1"}, nil
}

// stubProcessor fails on chosen question numbers.
type stubProcessor struct {
	failAt    map[int]error
	processed atomic.Int32
}

func (s *stubProcessor) Name() string { return "stub" }

func (s *stubProcessor) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	s.processed.Add(1)
	num := qa.Meta["num"].(int)
	if err, ok := s.failAt[num]; ok {
		return err
	}
	qa.Meta["done"] = true
	return nil
}

func numberedExpe(t *testing.T, n int) *expe.Expe {
	t.Helper()
	dir := t.TempDir()
	e := expe.New()
	for i := 1; i <= n; i++ {
		qa := expe.NewQA(fmt.Sprintf("question %d", i))
		qa.Meta["num"] = i
		e.Append(qa)
	}
	_, err := e.SaveTo(filepath.Join(dir, "run.json"), false, false)
	require.NoError(t, err)
	return e
}

func TestRunProcessesAllQAs(t *testing.T) {
	e := numberedExpe(t, 5)
	p := &stubProcessor{}
	require.NoError(t, Run(context.Background(), e, p, Options{}))
	assert.Equal(t, int32(5), p.processed.Load())
	for _, qa := range e.Items {
		assert.Equal(t, true, qa.Meta["done"])
	}
}

func TestRunSnapshotsFailedQA(t *testing.T) {
	e := numberedExpe(t, 5)
	dir := filepath.Dir(e.Path())
	p := &stubProcessor{failAt: map[int]error{3: errors.New("model exploded")}}

	require.NoError(t, Run(context.Background(), e, p, Options{}))

	// Siblings keep running past the failure.
	assert.Equal(t, int32(5), p.processed.Load())

	matches, err := filepath.Glob(filepath.Join(dir, "Stopped_at_3_of_5_run--*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "one failure snapshot for the failed QA")

	snap, err := expe.Load(matches[0])
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Len(), "the snapshot holds the whole record")
}

func TestRunSaveEvery(t *testing.T) {
	e := numberedExpe(t, 4)
	dir := filepath.Dir(e.Path())
	p := &stubProcessor{}

	require.NoError(t, Run(context.Background(), e, p, Options{SaveEvery: 2}))

	matches, err := filepath.Glob(filepath.Join(dir, "run--*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "interim checkpoints carry the canonical suffixed name")
}

// churnProcessor rewrites its QA's meta and answers many times, so an
// interim save overlapping a running sibling would marshal mid-flight
// state. Run under the race detector this pins the saver's exclusion
// of the workers.
type churnProcessor struct {
	processed atomic.Int32
}

func (c *churnProcessor) Name() string { return "churn" }

func (c *churnProcessor) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	for i := 0; i < 50; i++ {
		qa.Meta["round"] = i
		fresh := expe.NewAnswers()
		a := expe.NewAnswer()
		a.Text = fmt.Sprintf("draft %d", i)
		fresh.Items = append(fresh.Items, a)
		qa.Answers = fresh
	}
	c.processed.Add(1)
	return nil
}

func TestRunInterimSavesExcludeWorkers(t *testing.T) {
	e := numberedExpe(t, 16)
	dir := filepath.Dir(e.Path())
	p := &churnProcessor{}

	require.NoError(t, Run(context.Background(), e, p, Options{SaveEvery: 1}))
	assert.Equal(t, int32(16), p.processed.Load())

	matches, err := filepath.Glob(filepath.Join(dir, "run--*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	// Every snapshot that was written is a complete, parseable record.
	for _, m := range matches {
		snap, err := expe.Load(m)
		require.NoError(t, err, m)
		assert.Equal(t, 16, snap.Len(), m)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	e := numberedExpe(t, 2)
	p := &panicProcessor{}
	require.NoError(t, Run(context.Background(), e, p, Options{}))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(e.Path()), "Stopped_at_1_of_2_run--*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

type panicProcessor struct{}

func (p *panicProcessor) Name() string { return "panicky" }

func (p *panicProcessor) ProcessQA(ctx context.Context, qa *expe.QA, opts Options) error {
	if qa.Meta["num"].(int) == 1 {
		panic("nil dereference somewhere")
	}
	return nil
}

func TestSelected(t *testing.T) {
	a := newStubLLM(t, "model-a", "")
	b := newStubLLM(t, "model-b", "")
	tg, err := newTextGenerator([]llm.LLM{a, b})
	require.NoError(t, err)

	assert.Len(t, tg.selected(nil), 2)
	only := tg.selected([]string{"model-b"})
	require.Len(t, only, 1)
	assert.Equal(t, "model-b", only[0].Name())

	_, err = newTextGenerator(nil)
	require.Error(t, err)
}
