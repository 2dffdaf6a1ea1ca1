package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docsense/internal/doctree"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Source, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Document: filename, Err: err}
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	w := newLayoutWriter(filename)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			w.heading(node.Level, string(node.Text(src)))
		case *ast.ThematicBreak:
			// no text
		default:
			if t := extractText(n, src); t != "" {
				w.body(t)
			}
		}
	}
	return w.source(), nil
}

// extractText gets the text content of a goldmark AST node. Leaf blocks
// (code blocks) contribute their raw lines; everything else is walked
// through its inline children.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if !n.HasChildren() && n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if buf.Len() > 0 && c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
		buf.WriteString(extractText(c, src))
	}
	return strings.TrimSpace(buf.String())
}
