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

package expe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmpty is returned when a write is attempted on a record with no QA
// items. An empty record never touches the filesystem.
var ErrEmpty = errors.New("expe: no QA items to write")

// SuffixSep separates the file stem from the stats suffix. Everything
// after the first occurrence in a stem is replaced on the next write, so
// repeated saves never stack suffixes.
const SuffixSep = "--"

// timeNow is swapped in tests to pin the name suffix.
var timeNow = time.Now

// Expe is the experiment record: ordered QA items plus document-level
// meta. The JSON document is `{"meta": ..., "items": [...]}`; a bare
// top-level array is accepted on load for hand-written question files.
type Expe struct {
	Meta  Meta  `json:"meta"`
	Items []*QA `json:"items"`

	path string
}

// New returns an empty record.
func New() *Expe {
	return &Expe{Meta: Meta{}}
}

// Path is the file the record was loaded from or last saved to.
func (e *Expe) Path() string { return e.path }

// SetPath overrides the originating file, e.g. before a first save.
func (e *Expe) SetPath(path string) { e.path = path }

// Len returns the number of QA items.
func (e *Expe) Len() int { return len(e.Items) }

// Append adds a QA at the end. Order is never changed afterwards.
func (e *Expe) Append(qa *QA) {
	qa.normalize()
	e.Items = append(e.Items, qa)
}

// Load reads a record from a JSON file. Both the canonical
// `{meta, items}` document and a bare `[...]` array of QA items are
// accepted.
func Load(path string) (*Expe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("expe: loading %q: %w", path, err)
	}
	e := New()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &e.Items); err != nil {
			return nil, fmt.Errorf("expe: parsing %q: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(trimmed, e); err != nil {
			return nil, fmt.Errorf("expe: parsing %q: %w", path, err)
		}
	}
	if e.Meta == nil {
		e.Meta = Meta{}
	}
	for _, qa := range e.Items {
		qa.normalize()
	}
	e.path = path
	return e, nil
}

// PrepareWrite validates and decorates a destination path: the record
// must be non-empty, the extension is forced to forceExt when non-empty,
// the stats suffix replaces any previous one when addSuffix is set, and
// an existing file is refused unless overwrite is allowed. The decorated
// path is returned without anything being written.
func (e *Expe) PrepareWrite(path string, overwrite, addSuffix bool, forceExt string) (string, error) {
	if e.Len() == 0 {
		return "", ErrEmpty
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if forceExt != "" {
		ext = forceExt
	}
	if addSuffix {
		if i := strings.Index(stem, SuffixSep); i >= 0 {
			stem = stem[:i]
		}
		stem = stem + SuffixSep + e.Stats().suffix(timeNow())
	}
	out := filepath.Join(dir, stem+ext)
	if !overwrite {
		if _, err := os.Stat(out); err == nil {
			return "", fmt.Errorf("expe: %q: %w (save with overwrite to replace it)", out, os.ErrExist)
		}
	}
	return out, nil
}

// SaveTo writes the record as pretty-printed JSON under the decorated
// path and returns the path actually written. The written path becomes
// the record's current path.
func (e *Expe) SaveTo(path string, overwrite, addSuffix bool) (string, error) {
	out, err := e.PrepareWrite(path, overwrite, addSuffix, ".json")
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("expe: encoding: %w", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("expe: writing %q: %w", out, err)
	}
	e.path = out
	return out, nil
}

// Save rewrites the record under its current path with a fresh stats
// suffix. Used for interim snapshots during a run.
func (e *Expe) Save() (string, error) {
	if e.path == "" {
		return "", errors.New("expe: no current path, use SaveTo")
	}
	return e.SaveTo(e.path, true, true)
}

// SaveTemp writes a tagged snapshot next to the current file: the prefix
// is prepended to the current stem (previous suffix dropped) and the
// stats suffix re-applied. Used for failure snapshots.
func (e *Expe) SaveTemp(prefix string) (string, error) {
	dir := "."
	base := "expe.json"
	if e.path != "" {
		dir = filepath.Dir(e.path)
		base = filepath.Base(e.path)
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if i := strings.Index(stem, SuffixSep); i >= 0 {
		stem = stem[:i]
	}
	out, err := e.PrepareWrite(filepath.Join(dir, prefix+stem+ext), true, true, ".json")
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("expe: encoding: %w", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("expe: writing %q: %w", out, err)
	}
	return out, nil
}
