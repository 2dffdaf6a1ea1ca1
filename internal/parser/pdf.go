package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dgallion1/docsense/internal/doctree"
)

// PDFParser extracts positioned spans from PDF files. Glyphs reported by
// the PDF library are merged into runs sharing font, size and baseline.
// When the library cannot open the file, the bytes are rewritten once by
// pdfcpu (decrypting if needed) and extraction is retried.
type PDFParser struct {
	RepairOnFailure bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Document: filename, Err: fmt.Errorf("read: %w", err)}
	}

	src, err := extractSpans(data, filename)
	if err != nil && p.RepairOnFailure {
		repaired, rerr := repairPDF(data)
		if rerr != nil {
			return nil, &ParseError{Document: filename, Err: errors.Join(err, rerr)}
		}
		src, err = extractSpans(repaired, filename)
	}
	if err != nil {
		return nil, &ParseError{Document: filename, Err: err}
	}
	return src, nil
}

func extractSpans(data []byte, filename string) (src *doctree.Source, err error) {
	// The content stream interpreter panics on some malformed input.
	defer func() {
		if rec := recover(); rec != nil {
			src = nil
			err = fmt.Errorf("pdf content: %v", rec)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	src = &doctree.Source{Name: filename}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			src.Pages = append(src.Pages, nil)
			continue
		}
		glyphs := page.Content().Text
		src.Pages = append(src.Pages, mergeGlyphs(glyphs, pageTop(page, glyphs), i))
	}
	return src, nil
}

// repairPDF rewrites the document through pdfcpu with relaxed validation.
// Encrypted files with an empty user password come back decrypted.
func repairPDF(data []byte) (repaired []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			repaired = nil
			err = fmt.Errorf("pdfcpu rewrite: %v", rec)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err == nil {
		return out.Bytes(), nil
	}
	out.Reset()
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu rewrite: %w", err)
	}
	return out.Bytes(), nil
}

// pageTop returns the y coordinate of the top edge in PDF user space,
// taken from the MediaBox when present.
func pageTop(page pdflib.Page, glyphs []pdflib.Text) float64 {
	box := page.V.Key("MediaBox")
	if box.Len() == 4 {
		if top := box.Index(3).Float64(); top > 0 {
			return top
		}
	}
	top := 0.0
	for _, g := range glyphs {
		top = math.Max(top, g.Y+g.FontSize)
	}
	return top
}

const (
	baselineTolerance = 0.5  // points
	wordGapRatio      = 0.15 // of font size: wider gaps insert a space
	runGapRatio       = 1.5  // of font size: wider gaps start a new span
)

// mergeGlyphs turns the glyph stream of one page into spans. Y is flipped
// so it grows downward from the top of the page.
func mergeGlyphs(glyphs []pdflib.Text, top float64, pageNum int) []doctree.Span {
	var spans []doctree.Span
	var cur *doctree.Span
	var curFont string
	var curEnd float64
	var sb strings.Builder

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(strings.Fields(sb.String()), " ")
		if cur.Text != "" {
			spans = append(spans, *cur)
		}
		cur = nil
		sb.Reset()
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		y := top - g.Y
		if cur != nil {
			gap := g.X - curEnd
			sameRun := g.Font == curFont &&
				round1(g.FontSize) == cur.FontSize &&
				math.Abs(y-cur.Y) <= baselineTolerance &&
				gap > -cur.FontSize && gap <= runGapRatio*cur.FontSize
			if sameRun {
				if gap > wordGapRatio*cur.FontSize {
					sb.WriteByte(' ')
				}
				sb.WriteString(g.S)
				curEnd = g.X + g.W
				continue
			}
			flush()
		}
		cur = &doctree.Span{
			FontSize: round1(g.FontSize),
			X:        g.X,
			Y:        y,
			Page:     pageNum,
		}
		curFont = g.Font
		curEnd = g.X + g.W
		sb.WriteString(g.S)
	}
	flush()
	return spans
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
