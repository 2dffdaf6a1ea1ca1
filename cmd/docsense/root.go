package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docsense/internal/config"
	"github.com/dgallion1/docsense/internal/embed"
	"github.com/dgallion1/docsense/internal/parser"
	"github.com/dgallion1/docsense/internal/pipeline"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "docsense",
	Short: "Document outline extraction and persona-driven section ranking",
	Long: `Docsense reads PDF, Markdown, HTML and DOCX documents and recovers their
structure: a title and an H1-H3 outline per document.

Given a persona and a job to be done, it also ranks sections across a
collection of documents and pulls out the sentences that matter most.

Everything runs offline by default. An OpenAI-compatible embedding endpoint
can be configured instead of the built-in hashing embedder.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./docsense.yaml)",
	)

	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger every command uses.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	lvl, _ := cfg.SlogLevel()
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return cfg, log, nil
}

func newEmbedder(cfg config.Config, log *slog.Logger) embed.Embedder {
	return embed.New(embed.Config{
		Endpoint:    cfg.EmbedEndpoint,
		APIKey:      cfg.EmbedAPIKey,
		Model:       cfg.EmbedModel,
		Dimension:   cfg.EmbedDimension,
		BatchSize:   cfg.EmbedBatchSize,
		Timeout:     cfg.EmbedTimeout,
		MaxAttempts: cfg.EmbedMaxAttempts,
		Logger:      log,
	})
}

// readInputs loads path, or every supported file directly inside it when
// path is a directory. Directory entries are returned sorted by name.
func readInputs(path string) ([]pipeline.Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []pipeline.Input{{Name: filepath.Base(path), Data: data}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var inputs []pipeline.Input
	for _, e := range entries {
		if e.IsDir() || !parser.IsSupportedExtension(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, pipeline.Input{Name: e.Name(), Data: data})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	return inputs, nil
}
