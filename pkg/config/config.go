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

// Package config loads the pipeline configuration: YAML with ${VAR}
// environment expansion, .env support, and shape validation. Plug-point
// names (prompters, exporters, retrievers) are resolved later, at
// pipeline assembly.
package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/ragmark/pkg/llm"
	"github.com/kadirpekel/ragmark/pkg/retriever"
)

// StageOrder lists the stage names in execution order.
var StageOrder = []string{"answers", "facts", "evals"}

// Config is the whole pipeline declaration.
type Config struct {
	InputFile      string                  `mapstructure:"input_file"`
	StartingFolder string                  `mapstructure:"starting_folder"`
	Retriever      *retriever.Config       `mapstructure:"retriever"`
	Generate       map[string]*StageConfig `mapstructure:"generate"`
}

// StageConfig declares one generation stage.
type StageConfig struct {
	LLMs         []llm.Config              `mapstructure:"llms"`
	Prompter     string                    `mapstructure:"prompter"`
	OnlyLLMs     []string                  `mapstructure:"only_llms"`
	SaveEvery    int                       `mapstructure:"save_every"`
	StartFrom    string                    `mapstructure:"start_from"`
	MissingOnly  bool                      `mapstructure:"missing_only"`
	OutputFolder string                    `mapstructure:"output_folder"`
	Export       map[string]map[string]any `mapstructure:"export"`
}

// Load reads, expands and validates a config file. A .env file in the
// working directory is loaded first so ${VAR} references and API keys
// resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes config bytes that are already in memory.
func Parse(raw []byte) (*Config, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}
	expanded, _ := expandEnv(root).(map[string]any)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToLLMConfigHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringToLLMConfigHook lets a stage list models as bare names:
//
//	llms: [gpt-4o, mistral-large]
func stringToLLMConfigHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf(llm.Config{}) {
		return llm.Config{Model: data.(string)}, nil
	}
	return data, nil
}

// expandEnv walks the decoded YAML and substitutes $VAR and ${VAR} in
// every string. Unset variables expand to the empty string.
func expandEnv(node any) any {
	switch v := node.(type) {
	case string:
		return os.ExpandEnv(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = expandEnv(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = expandEnv(val)
		}
		return out
	default:
		return node
	}
}

// Validate checks the config's shape. Every declared stage must be a
// known stage name with at least one model, a prompter and an output
// folder.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("config: input_file is required")
	}
	if c.StartingFolder == "" {
		return fmt.Errorf("config: starting_folder is required")
	}
	if len(c.Generate) == 0 {
		return fmt.Errorf("config: at least one generate stage is required")
	}

	known := map[string]bool{}
	for _, name := range StageOrder {
		known[name] = true
	}
	for name, stage := range c.Generate {
		if !known[name] {
			return fmt.Errorf("config: unknown stage %q (known: %v)", name, StageOrder)
		}
		if stage == nil || len(stage.LLMs) == 0 {
			return fmt.Errorf("config: stage %q needs at least one LLM", name)
		}
		for i, mc := range stage.LLMs {
			if mc.Model == "" {
				return fmt.Errorf("config: stage %q llm #%d has no model name", name, i+1)
			}
		}
		if stage.Prompter == "" {
			return fmt.Errorf("config: stage %q needs a prompter", name)
		}
		if stage.OutputFolder == "" {
			return fmt.Errorf("config: stage %q needs an output_folder", name)
		}
		if stage.SaveEvery < 0 {
			return fmt.Errorf("config: stage %q: save_every cannot be negative", name)
		}
		if _, err := llm.ParseStartFrom(stage.StartFrom); err != nil {
			return fmt.Errorf("config: stage %q: %w", name, err)
		}
	}
	return nil
}

// Stages returns the configured stage names in execution order.
func (c *Config) Stages() []string {
	var out []string
	for _, name := range StageOrder {
		if _, ok := c.Generate[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
