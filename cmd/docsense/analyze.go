package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docsense/internal/pipeline"
)

var (
	analyzeInput      string
	analyzeDescriptor string
	analyzeOut        string
	analyzeTopK       int
	analyzeTopN       int
	analyzePersona    string
	analyzeJob        string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rank document sections for a persona and job to be done",
	Long: `Rank the sections of a document collection against a persona and job to be
done, then extract the most relevant sentences of the top sections.

The request comes from a JSON descriptor, or from --persona and --job in
which case every supported document in the input directory is used. The
result is written to <challenge_id>.json, or analysis.json when the
descriptor carries no challenge id.

Examples:
  docsense analyze --input ./docs --descriptor ./docs/challenge.json --out ./out
  docsense analyze --input ./docs --persona "Travel planner" --job "Plan a 4 day trip" -k 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		inputs, err := readInputs(analyzeInput)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		var req pipeline.Request
		if analyzeDescriptor != "" {
			data, err := os.ReadFile(analyzeDescriptor)
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}
			if req, err = pipeline.ParseDescriptor(data); err != nil {
				return err
			}
		} else {
			req.Persona = analyzePersona
			req.JobToBeDone = analyzeJob
			for _, in := range inputs {
				req.Documents = append(req.Documents, in.Name)
			}
		}
		if cmd.Flags().Changed("top-k") {
			req.TopK = analyzeTopK
		}
		if cmd.Flags().Changed("top-n") {
			req.TopN = analyzeTopN
		}
		if err := req.Validate(); err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(cfg, newEmbedder(cfg, log), log)
		res, err := orch.Analyze(cmd.Context(), req, inputs)
		if err != nil {
			log.Error("analysis failed", "error", err)
			return err
		}

		if err := os.MkdirAll(analyzeOut, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		path := filepath.Join(analyzeOut, pipeline.AnalysisFileName(req))
		if err := pipeline.WriteJSON(path, res); err != nil {
			return err
		}
		log.Info("analysis complete",
			"documents", len(req.Documents),
			"sections", len(res.ExtractedSections),
			"warnings", len(res.Metadata.Warnings),
			"model", orch.Model(),
			"out", path,
		)
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeInput, "input", "input", "directory containing the documents")
	f.StringVar(&analyzeDescriptor, "descriptor", "", "job descriptor JSON file")
	f.StringVar(&analyzeOut, "out", "output", "output directory")
	f.IntVarP(&analyzeTopK, "top-k", "k", 0, "number of sections to select (default from config)")
	f.IntVarP(&analyzeTopN, "top-n", "n", 0, "sentences per refined section (default from config)")
	f.StringVar(&analyzePersona, "persona", "", "persona, when no descriptor is given")
	f.StringVar(&analyzeJob, "job", "", "job to be done, when no descriptor is given")
}
