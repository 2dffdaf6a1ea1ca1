package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docsense/internal/embed"
	"github.com/dgallion1/docsense/internal/pipeline"
)

var outlineOut string

var outlineCmd = &cobra.Command{
	Use:   "outline <file-or-dir>",
	Short: "Extract the title and heading outline of documents",
	Long: `Extract the title and H1-H3 outline of a document, or of every supported
document in a directory.

One <stem>.json is written per document. A document that cannot be parsed
gets a <stem>.warning.json instead and the others are still processed.

Examples:
  docsense outline report.pdf --out ./out
  docsense outline ./input --out ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		inputs, err := readInputs(args[0])
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no supported documents in %s", args[0])
		}

		// The structural stage never embeds.
		orch := pipeline.NewOrchestrator(cfg, embed.NewHashEmbedder(0), log)
		results := orch.Outline(cmd.Context(), inputs)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if err := pipeline.WriteOutlines(outlineOut, results); err != nil {
			return err
		}
		log.Info("outline complete",
			"documents", len(results),
			"failed", failed,
			"out", outlineOut,
		)
		return nil
	},
}

func init() {
	outlineCmd.Flags().StringVar(&outlineOut, "out", "output", "output directory")
}
