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

// Package pipeline assembles the configured stages and runs them in
// order, feeding each stage's canonical JSON output to the next.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/kadirpekel/ragmark/pkg/config"
	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/exporters"
	"github.com/kadirpekel/ragmark/pkg/generators"
	"github.com/kadirpekel/ragmark/pkg/llm"
	"github.com/kadirpekel/ragmark/pkg/prompter"
	"github.com/kadirpekel/ragmark/pkg/retriever"
)

type stage struct {
	name         string
	processor    generators.Processor
	opts         generators.Options
	outputFolder string
	canonical    exporters.Exporter
	renderings   []exporters.Exporter
}

// Pipeline is a fully assembled run: every plug-point name resolved,
// every model constructed, before any generation starts.
type Pipeline struct {
	cfg    *config.Config
	stages []*stage
}

// New assembles the pipeline. Unknown prompter/exporter/retriever
// names and a missing starting input are reported here, not mid-run.
func New(cfg *config.Config) (*Pipeline, error) {
	input := filepath.Join(cfg.StartingFolder, cfg.InputFile)
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("pipeline: starting input %q: %w", input, err)
	}

	var ret retriever.Retriever
	if cfg.Retriever != nil {
		var err error
		if ret, err = retriever.New(*cfg.Retriever); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	p := &Pipeline{cfg: cfg}
	for _, name := range cfg.Stages() {
		st, err := buildStage(name, cfg.Generate[name], ret)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

func buildStage(name string, sc *config.StageConfig, ret retriever.Retriever) (*stage, error) {
	pr, err := prompter.New(sc.Prompter)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
	}

	models := make([]llm.LLM, 0, len(sc.LLMs))
	for _, mc := range sc.LLMs {
		m, err := llm.FromConfig(mc, pr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
		}
		models = append(models, m)
	}

	var proc generators.Processor
	switch name {
	case "answers":
		proc, err = generators.NewAnswerGenerator(models, ret)
	case "facts":
		proc, err = generators.NewFactGenerator(models)
	case "evals":
		proc, err = generators.NewEvalGenerator(models)
	default:
		err = fmt.Errorf("no generator for stage %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
	}

	startFrom, err := llm.ParseStartFrom(sc.StartFrom)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
	}

	// The canonical JSON document is always written; a stage may tune
	// it with an explicit json export block.
	jsonOpts := map[string]any{"overwrite": true}
	if o, ok := sc.Export[exporters.JSONName]; ok {
		jsonOpts = o
	}
	canonical, err := exporters.New(exporters.JSONName, jsonOpts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
	}

	var renderings []exporters.Exporter
	keys := make([]string, 0, len(sc.Export))
	for key := range sc.Export {
		if key != exporters.JSONName {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		x, err := exporters.New(key, sc.Export[key])
		if err != nil {
			return nil, fmt.Errorf("pipeline: stage %q: %w", name, err)
		}
		renderings = append(renderings, x)
	}

	return &stage{
		name:      name,
		processor: proc,
		opts: generators.Options{
			StartFrom:   startFrom,
			MissingOnly: sc.MissingOnly,
			OnlyLLMs:    sc.OnlyLLMs,
			SaveEvery:   sc.SaveEvery,
		},
		outputFolder: sc.OutputFolder,
		canonical:    canonical,
		renderings:   renderings,
	}, nil
}

// Run executes the stages from startStage through stopStage (empty
// means first and last configured). Each stage loads the previous
// stage's canonical output.
func (p *Pipeline) Run(ctx context.Context, startStage, stopStage string) error {
	selected, err := p.selectStages(startStage, stopStage)
	if err != nil {
		return err
	}

	input := filepath.Join(p.cfg.StartingFolder, p.cfg.InputFile)
	for _, st := range selected {
		log := slog.With("stage", st.name)
		log.Info("starting stage", "input", input)

		e, err := expe.Load(input)
		if err != nil {
			return fmt.Errorf("pipeline: stage %q: %w", st.name, err)
		}
		if e.Len() == 0 {
			return fmt.Errorf("pipeline: stage %q: input %q: %w", st.name, input, expe.ErrEmpty)
		}

		if err := generators.Run(ctx, e, st.processor, st.opts); err != nil {
			return fmt.Errorf("pipeline: stage %q: %w", st.name, err)
		}

		if err := os.MkdirAll(st.outputFolder, 0o755); err != nil {
			return fmt.Errorf("pipeline: stage %q: %w", st.name, err)
		}
		fileName := filepath.Base(input)
		out, err := st.canonical.Save(e, st.outputFolder, fileName)
		if err != nil {
			return fmt.Errorf("pipeline: stage %q: saving: %w", st.name, err)
		}
		log.Info("stage output written", "path", out)

		for _, x := range st.renderings {
			rendered, err := x.Save(e, st.outputFolder, fileName)
			if err != nil {
				return fmt.Errorf("pipeline: stage %q: %s export: %w", st.name, x.Name(), err)
			}
			log.Info("export written", "format", x.Name(), "path", rendered)
		}

		input = out
	}
	return nil
}

func (p *Pipeline) selectStages(startStage, stopStage string) ([]*stage, error) {
	if len(p.stages) == 0 {
		return nil, fmt.Errorf("pipeline: no stages configured")
	}
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.name
	}

	start := 0
	if startStage != "" {
		if start = slices.Index(names, startStage); start < 0 {
			return nil, fmt.Errorf("pipeline: start stage %q not configured (have %v)", startStage, names)
		}
	}
	stop := len(p.stages) - 1
	if stopStage != "" {
		if stop = slices.Index(names, stopStage); stop < 0 {
			return nil, fmt.Errorf("pipeline: stop stage %q not configured (have %v)", stopStage, names)
		}
	}
	if start > stop {
		return nil, fmt.Errorf("pipeline: start stage %q comes after stop stage %q", startStage, stopStage)
	}
	return p.stages[start : stop+1], nil
}
