// Package retriever supplies context chunks for a question. The
// reference implementation queries a local chromem-go collection; other
// backends register themselves by name.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

// Retriever fills qa.Chunks with the passages relevant to the question.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, qa *expe.QA) error
}

// Config selects and parameterizes a retriever backend.
type Config struct {
	Name       string          `mapstructure:"name"`
	Path       string          `mapstructure:"path"`
	Collection string          `mapstructure:"collection"`
	TopK       int             `mapstructure:"top_k"`
	Embedding  EmbeddingConfig `mapstructure:"embedding"`
}

// EmbeddingConfig points at the OpenAI-compatible embedding endpoint
// the collection was indexed with.
type EmbeddingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// Factory builds a retriever from its config.
type Factory func(cfg Config) (Retriever, error)

var (
	mu    sync.RWMutex
	table = map[string]Factory{}
)

// Register adds a retriever backend under a name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	table[name] = f
}

// New builds the retriever registered under cfg.Name.
func New(cfg Config) (Retriever, error) {
	mu.RLock()
	f, ok := table[cfg.Name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("retriever: unknown retriever %q (known: %v)", cfg.Name, Names())
	}
	return f(cfg)
}

// Names lists the registered backends, sorted.
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
