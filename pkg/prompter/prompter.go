// Package prompter defines the prompt strategies of the three
// generation stages. A Prompter builds the user/system pair for one
// item and post-processes the raw model text into the target record.
// Post-processing is total: malformed model output records diagnostics
// in the target's meta instead of failing.
package prompter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

// Inputs carries the material a prompter may draw from. Each stage
// fills the fields it has: answers get Question+Chunks, facts get
// Question+Answer, evals get Answer+Facts.
type Inputs struct {
	Question *expe.Question
	Chunks   *expe.Chunks
	Answer   *expe.Answer
	Facts    *expe.Facts
}

type Prompter interface {
	Name() string
	BuildPrompt(in Inputs) (*expe.Prompt, error)
	PostProcess(qa *expe.QA, target expe.WithLLMAnswer)
}

// Factory builds a fresh prompter instance.
type Factory func() Prompter

var (
	mu    sync.RWMutex
	table = map[string]Factory{}
)

// Register adds a prompter under a name. Later registrations replace
// earlier ones.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	table[name] = f
}

// New builds the prompter registered under name.
func New(name string) (Prompter, error) {
	mu.RLock()
	f, ok := table[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("prompter: unknown prompter %q (known: %v)", name, Names())
	}
	return f(), nil
}

// Names lists the registered prompter names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
