package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docsense/internal/classify"
	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/layout"
	"github.com/dgallion1/docsense/internal/outline"
	"github.com/dgallion1/docsense/internal/parser"
)

// Input is one document to process.
type Input struct {
	Name string // File name; the document identifier in all output
	Data []byte
}

// Worker runs the structural chain for one document: parse, group lines,
// classify, build the outline and segment sections.
type Worker struct {
	log       *slog.Logger
	timeout   time.Duration
	pdfRepair bool
}

func NewWorker(log *slog.Logger, timeout time.Duration, pdfRepair bool) *Worker {
	return &Worker{log: log, timeout: timeout, pdfRepair: pdfRepair}
}

// Process returns the structured document. Every failure is a
// *parser.ParseError naming the document; no other document is affected.
func (w *Worker) Process(ctx context.Context, in Input) (*doctree.Document, error) {
	log := w.log.With("document", in.Name)
	start := time.Now()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// Phase 1: Parse
	p, err := parser.ForFile(in.Name)
	if err != nil {
		return nil, &parser.ParseError{Document: in.Name, Err: err}
	}
	if pp, ok := p.(*parser.PDFParser); ok {
		pp.RepairOnFailure = w.pdfRepair
	}
	src, err := parseWithContext(ctx, p, in)
	if err != nil {
		log.Error("parse failed", "error", err)
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &parser.ParseError{Document: in.Name, Err: err}
	}
	if src.SpanCount() == 0 {
		log.Info("empty document", "fallback", "title_from_filename")
	}

	// Phase 2: Lines
	lines := layout.GroupDocument(src)

	// Phase 3: Classify
	res := classify.Classify(parser.Stem(in.Name), lines)
	if res.TitleFromID && src.SpanCount() > 0 {
		log.Info("no text on first page", "fallback", "title_from_filename")
	}
	if res.Pass == classify.PassFallback {
		log.Info("few strict headings, using size-only headings",
			"fallback", "size_only_headings",
			"strict_count", res.StrictCount,
			"threshold", classify.MinStrictHeadings)
	}

	// Phase 4: Outline and sections
	doc := outline.NewDocument(in.Name, res)
	if len(doc.Outline.Headings) == 0 {
		log.Info("no headings found", "fallback", "title_only_outline")
	}

	log.Debug("document processed",
		"pages", len(src.Pages),
		"lines", len(lines),
		"heading_lines", res.HeadingCount(),
		"headings", len(doc.Outline.Headings),
		"sections", len(doc.Sections),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

// parseWithContext runs the parser so that the document deadline is
// honored even though parsers do not take a context.
func parseWithContext(ctx context.Context, p parser.Parser, in Input) (*doctree.Source, error) {
	type result struct {
		src *doctree.Source
		err error
	}
	done := make(chan result, 1)
	go func() {
		src, err := p.Parse(bytes.NewReader(in.Data), in.Name)
		done <- result{src: src, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("parse: %w", ctx.Err())
	case r := <-done:
		return r.src, r.err
	}
}
