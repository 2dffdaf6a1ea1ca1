package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/parser"
	"github.com/dgallion1/docsense/internal/rank"
)

// Warning records a document that was skipped or degraded.
type Warning struct {
	Document string `json:"document"`
	Error    string `json:"error"`
}

// Metadata describes an analyze run.
type Metadata struct {
	InputDocuments      []string  `json:"input_documents"`
	Persona             string    `json:"persona"`
	JobToBeDone         string    `json:"job_to_be_done"`
	ProcessingTimestamp string    `json:"processing_timestamp"`
	Warnings            []Warning `json:"warnings"`
}

// ExtractedSection is one selected section.
type ExtractedSection struct {
	Document     string `json:"document"`
	SectionTitle string `json:"section_title"`
	Page         int    `json:"page"`
	Rank         int    `json:"rank"`
}

// SubsectionAnalysis is the refined text of one selected section.
type SubsectionAnalysis struct {
	Document     string   `json:"document"`
	SectionTitle string   `json:"section_title"`
	Page         int      `json:"page"`
	RefinedText  []string `json:"refined_text"`
}

// Result is the output of an analyze run.
type Result struct {
	Metadata           Metadata             `json:"metadata"`
	ExtractedSections  []ExtractedSection   `json:"extracted_sections"`
	SubsectionAnalysis []SubsectionAnalysis `json:"subsection_analysis"`
}

func newResult(req Request, warnings []Warning, sel rank.Selection, subs []rank.Subsection, now time.Time) *Result {
	if warnings == nil {
		warnings = []Warning{}
	}
	res := &Result{
		Metadata: Metadata{
			InputDocuments:      req.Documents,
			Persona:             req.Persona,
			JobToBeDone:         req.JobToBeDone,
			ProcessingTimestamp: now.UTC().Format(time.RFC3339),
			Warnings:            warnings,
		},
		ExtractedSections:  make([]ExtractedSection, 0, len(sel.Sections)),
		SubsectionAnalysis: make([]SubsectionAnalysis, 0, len(subs)),
	}
	for _, s := range sel.Sections {
		res.ExtractedSections = append(res.ExtractedSections, ExtractedSection{
			Document:     s.DocumentID,
			SectionTitle: s.HeadingText,
			Page:         s.Page,
			Rank:         s.Rank,
		})
	}
	for _, s := range subs {
		res.SubsectionAnalysis = append(res.SubsectionAnalysis, SubsectionAnalysis{
			Document:     s.DocumentID,
			SectionTitle: s.SectionHeading,
			Page:         s.Page,
			RefinedText:  s.RefinedText,
		})
	}
	return res
}

// OutlineResult is the outcome of the structural stage for one document.
// Exactly one of Outline and Err is set.
type OutlineResult struct {
	Document string
	Outline  *doctree.Outline
	Err      error
}

// Warning converts a failed result into its warning record.
func (r OutlineResult) Warning() Warning {
	return Warning{Document: r.Document, Error: r.Err.Error()}
}

// OutlineFileName is the output file for a document's outline.
func OutlineFileName(document string) string {
	return parser.Stem(document) + ".json"
}

// WarningFileName is the output file recording why a document failed.
func WarningFileName(document string) string {
	return parser.Stem(document) + ".warning.json"
}

// AnalysisFileName is the output file of an analyze run.
func AnalysisFileName(req Request) string {
	if req.ChallengeID != "" {
		return filepath.Base(req.ChallengeID) + ".json"
	}
	return "analysis.json"
}

// WriteOutlines writes one file per result into dir: the outline, or a
// warning record for a failed document.
func WriteOutlines(dir string, results []OutlineResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var errs []error
	for _, r := range results {
		var err error
		if r.Err != nil {
			err = WriteJSON(filepath.Join(dir, WarningFileName(r.Document)), r.Warning())
		} else {
			err = WriteJSON(filepath.Join(dir, OutlineFileName(r.Document)), r.Outline)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
