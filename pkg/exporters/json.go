package exporters

import (
	"path/filepath"

	"github.com/kadirpekel/ragmark/pkg/expe"
)

const JSONName = "json"

func init() {
	Register(JSONName, func(opts map[string]any) (Exporter, error) {
		o, err := decodeOptions(opts)
		if err != nil {
			return nil, err
		}
		return &JSON{Options: o}, nil
	})
}

// JSON writes the canonical document. Its output is what the next
// pipeline stage loads.
type JSON struct {
	Options
}

func (x *JSON) Name() string { return JSONName }

func (x *JSON) Save(e *expe.Expe, folder, fileName string) (string, error) {
	return e.SaveTo(filepath.Join(folder, fileName), x.Overwrite, x.addSuffix())
}
