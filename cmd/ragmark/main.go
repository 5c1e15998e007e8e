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

// Command ragmark runs the RAG evaluation pipeline.
//
// Usage:
//
//	ragmark run --config ragmark.yaml
//	ragmark run --config ragmark.yaml --start facts --stop evals
//	ragmark validate --config ragmark.yaml
//	ragmark export answers.json --format html --output-folder report
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/ragmark/pkg/config"
	"github.com/kadirpekel/ragmark/pkg/expe"
	"github.com/kadirpekel/ragmark/pkg/exporters"
	"github.com/kadirpekel/ragmark/pkg/logger"
	"github.com/kadirpekel/ragmark/pkg/pipeline"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run the configured pipeline stages."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration and assemble the pipeline without running it."`
	Export   ExportCmd   `cmd:"" help:"Render a saved experiment file to another format."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"ragmark.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ragmark version %s\n", version)
	return nil
}

// RunCmd executes the configured stages in order.
type RunCmd struct {
	Start string `help:"First stage to run (answers, facts, evals). Defaults to the first configured stage."`
	Stop  string `help:"Last stage to run. Defaults to the last configured stage."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration", "path", cli.Config, "stages", cfg.Stages())

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	return p.Run(ctx, c.Start, c.Stop)
}

// ValidateCmd loads the config and assembles the pipeline, reporting
// unknown plug-point names and missing inputs without generating.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if _, err := pipeline.New(cfg); err != nil {
		return err
	}

	fmt.Printf("Configuration valid: %s\n", cli.Config)
	fmt.Printf("  Input:  %s\n", filepath.Join(cfg.StartingFolder, cfg.InputFile))
	for _, name := range cfg.Stages() {
		stage := cfg.Generate[name]
		models := make([]string, len(stage.LLMs))
		for i, mc := range stage.LLMs {
			models[i] = mc.Model
		}
		fmt.Printf("  Stage %s: prompter=%s llms=%s output=%s\n",
			name, stage.Prompter, strings.Join(models, ","), stage.OutputFolder)
	}
	return nil
}

// ExportCmd renders an existing experiment file without running any
// generation.
type ExportCmd struct {
	File         string `arg:"" help:"Experiment JSON file to render." type:"path"`
	Format       string `help:"Export format (json, html, spreadsheet)." default:"html"`
	OutputFolder string `name:"output-folder" help:"Destination folder (defaults to the input file's folder)." type:"path"`
	Overwrite    bool   `help:"Overwrite an existing output file."`
	ShowChunks   bool   `name:"show-chunks" help:"Include retrieved chunks in the html report."`
}

func (c *ExportCmd) Run(cli *CLI) error {
	e, err := expe.Load(c.File)
	if err != nil {
		return err
	}

	opts := map[string]any{
		"overwrite":  c.Overwrite,
		"add_suffix": false,
	}
	if c.Format == exporters.HTMLName {
		opts["show_chunks"] = c.ShowChunks
	}
	x, err := exporters.New(c.Format, opts)
	if err != nil {
		return err
	}

	folder := c.OutputFolder
	if folder == "" {
		folder = filepath.Dir(c.File)
	}
	out, err := x.Save(e, folder, filepath.Base(c.File))
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s\n", out)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("ragmark"),
		kong.Description("ragmark - RAG answer generation and evaluation pipeline"),
		kong.UsageOnError(),
	)

	output := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		file, done, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		output = file
		cleanup = done
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)
	if cleanup != nil {
		defer cleanup()
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
