// Package exporters renders an experiment record to its output
// formats. The canonical JSON document is itself an exporter, so every
// format shares the same naming and overwrite rules.
package exporters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

// Exporter writes one rendering of the record into folder, deriving the
// output name from fileName (extension replaced, stats suffix applied
// per its options). Returns the path actually written.
type Exporter interface {
	Name() string
	Save(e *expe.Expe, folder, fileName string) (string, error)
}

// Options are the knobs every exporter shares.
type Options struct {
	Overwrite bool  `mapstructure:"overwrite"`
	AddSuffix *bool `mapstructure:"add_suffix"`
}

// addSuffix defaults to true: outputs carry the stats suffix unless
// explicitly turned off.
func (o Options) addSuffix() bool {
	return o.AddSuffix == nil || *o.AddSuffix
}

// Factory builds an exporter from its config block.
type Factory func(opts map[string]any) (Exporter, error)

var (
	mu    sync.RWMutex
	table = map[string]Factory{}
)

// Register adds an exporter under a name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	table[name] = f
}

// New builds the exporter registered under name with its config block.
func New(name string, opts map[string]any) (Exporter, error) {
	mu.RLock()
	f, ok := table[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exporters: unknown exporter %q (known: %v)", name, Names())
	}
	return f(opts)
}

// Names lists the registered exporters, sorted.
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

func decodeOptions(opts map[string]any) (Options, error) {
	var o Options
	if err := decodeInto(opts, &o); err != nil {
		return Options{}, err
	}
	return o, nil
}

func decodeInto(opts map[string]any, target any) error {
	if err := mapstructure.Decode(opts, target); err != nil {
		return fmt.Errorf("exporters: decoding options: %w", err)
	}
	return nil
}
