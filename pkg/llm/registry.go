package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/ragmark/pkg/prompter"
)

// Factory builds an LLM from its config and the stage's prompter.
type Factory func(cfg Config, p prompter.Prompter) (LLM, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a driver for a specific model name. Model names
// without a registered driver fall back to the OpenAI-compatible Model.
func Register(model string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[model] = f
}

// FromConfig builds the LLM for a model config, using a registered
// driver when one exists for the model name.
func FromConfig(cfg Config, p prompter.Prompter) (LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model name is required")
	}
	mu.RLock()
	f, ok := factories[cfg.Model]
	mu.RUnlock()
	if ok {
		return f(cfg, p)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: model %q has no base_url and no registered driver", cfg.Model)
	}
	return NewModel(cfg, p), nil
}

// Registered lists the model names with a dedicated driver, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
