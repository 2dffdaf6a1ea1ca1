package classify

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/docsense/internal/doctree"
)

func line(text string, size float64, page int, y float64) doctree.Line {
	return doctree.Line{Text: text, FontSize: size, Page: page, Y: y}
}

// strictDoc has a title and five strict headings over three sizes.
func strictDoc() []doctree.Line {
	return []doctree.Line{
		line("Guide to the South of France", 28, 1, 40),
		line("Travel Planning Tips", 20, 1, 100),
		line("Book early and compare prices.", 10, 1, 120),
		line("Packing List: Essentials", 16, 1, 200),
		line("Pack light.", 10, 1, 220),
		line("Coastal Towns", 20, 2, 60),
		line("Nice and Cannes are popular.", 10, 2, 80),
		line("Local Cuisine", 16, 2, 160),
		line("Try the bouillabaisse.", 10, 2, 180),
		line("Nightlife Options", 16, 3, 60),
		line("Bars open late.", 10, 3, 80),
	}
}

func headings(res Result) []doctree.ClassifiedLine {
	var out []doctree.ClassifiedLine
	for _, l := range res.Lines {
		if l.Role.IsHeading() {
			out = append(out, l)
		}
	}
	return out
}

func TestHeadingSizes_TopThreeDescending(t *testing.T) {
	lines := []doctree.Line{
		line("a", 10, 1, 0), line("b", 18, 1, 0), line("c", 12, 1, 0),
		line("d", 24, 1, 0), line("e", 18, 1, 0), line("f", 10, 1, 0),
	}
	got := HeadingSizes(lines)
	want := []float64{24, 18, 12}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := 1; i < len(got); i++ {
		if got[i] >= got[i-1] {
			t.Errorf("sizes not strictly descending: %v", got)
		}
	}
}

func TestHeadingSizes_FewerThanThree(t *testing.T) {
	got := HeadingSizes([]doctree.Line{line("a", 12, 1, 0), line("b", 10, 1, 0), line("c", 12, 1, 0)})
	if !reflect.DeepEqual(got, []float64{12, 10}) {
		t.Errorf("expected [12 10], got %v", got)
	}
	if got := HeadingSizes(nil); len(got) != 0 {
		t.Errorf("expected no sizes, got %v", got)
	}
}

func TestClassify_StrictPass(t *testing.T) {
	res := Classify("guide", strictDoc())
	if res.Pass != PassStrict {
		t.Fatalf("expected strict pass, got %s (strict count %d)", res.Pass, res.StrictCount)
	}
	if res.Title != "Guide to the South of France" || res.TitleFromID {
		t.Errorf("unexpected title %q (from id %v)", res.Title, res.TitleFromID)
	}
	if res.Lines[0].Role != doctree.RoleTitle {
		t.Errorf("expected first line to be Title, got %s", res.Lines[0].Role)
	}

	hs := headings(res)
	want := []struct {
		text string
		role doctree.Role
	}{
		{"Travel Planning Tips", doctree.RoleH2},
		{"Packing List", doctree.RoleH3},
		{"Coastal Towns", doctree.RoleH2},
		{"Local Cuisine", doctree.RoleH3},
		{"Nightlife Options", doctree.RoleH3},
	}
	if len(hs) != len(want) {
		t.Fatalf("expected %d headings, got %d: %+v", len(want), len(hs), hs)
	}
	for i, w := range want {
		if hs[i].HeadingText != w.text || hs[i].Role != w.role {
			t.Errorf("heading %d: expected %s %q, got %s %q", i, w.role, w.text, hs[i].Role, hs[i].HeadingText)
		}
	}
}

func TestClassify_StrictHeadingsObeyRules(t *testing.T) {
	res := Classify("guide", strictDoc())
	for _, h := range headings(res) {
		n := len(strings.Fields(h.Text))
		if n < MinHeadingWords || n > MaxHeadingWords {
			t.Errorf("%q: word count %d out of range", h.Text, n)
		}
		if utf8.RuneCountInString(h.Text) > MaxHeadingChars {
			t.Errorf("%q: longer than %d", h.Text, MaxHeadingChars)
		}
		if hasTrailingPunct(h.Text) {
			t.Errorf("%q: trailing punctuation", h.Text)
		}
	}
}

func TestClassify_FallbackReplacesStrict(t *testing.T) {
	// Two strict headings, below the threshold. "Key Findings" has too few
	// words for the size-only pass.
	lines := []doctree.Line{
		line("Annual Report", 28, 1, 40),
		line("Key Findings", 20, 1, 100),
		line("A look at the numbers", 20, 1, 140),
		line("Regional sales grew steadily", 16, 2, 60),
		line("Body text continues here.", 10, 2, 80),
	}
	res := Classify("report", lines)
	if res.StrictCount >= MinStrictHeadings {
		t.Fatalf("test document should fall short of strict threshold, got %d", res.StrictCount)
	}
	if res.Pass != PassFallback {
		t.Fatalf("expected fallback pass, got %s", res.Pass)
	}

	want := fallbackPass(lines, HeadingSizes(lines), findTitle(lines))
	if !reflect.DeepEqual(res.Lines, want) {
		t.Errorf("classifier output differs from size-only pass")
	}

	hs := headings(res)
	if len(hs) != 2 {
		t.Fatalf("expected 2 fallback headings, got %d: %+v", len(hs), hs)
	}
	if hs[0].HeadingText != "A look at the numbers" {
		t.Errorf("fallback text should be verbatim, got %q", hs[0].HeadingText)
	}
	for _, l := range res.Lines {
		if l.Text == "Key Findings" && l.Role != doctree.RoleBody {
			t.Errorf("strict-only heading leaked into fallback output")
		}
	}
}

func TestClassify_TitleOnly(t *testing.T) {
	res := Classify("intro", []doctree.Line{line("Introduction", 24, 1, 50)})
	if res.Title != "Introduction" {
		t.Errorf("expected title Introduction, got %q", res.Title)
	}
	if n := res.HeadingCount(); n != 0 {
		t.Errorf("expected no headings, got %d", n)
	}
}

func TestClassify_TitleTiesGoToTopmost(t *testing.T) {
	res := Classify("doc", []doctree.Line{
		line("Lower Big Line", 24, 1, 300),
		line("Upper Big Line", 24, 1, 100),
	})
	if res.Title != "Upper Big Line" {
		t.Errorf("expected topmost title, got %q", res.Title)
	}
}

func TestClassify_EmptyFirstPageUsesID(t *testing.T) {
	res := Classify("scanned", []doctree.Line{line("Later Page Heading", 20, 2, 50)})
	if !res.TitleFromID || res.Title != "scanned" {
		t.Errorf("expected title from id, got %q (from id %v)", res.Title, res.TitleFromID)
	}
	if res.TitleIndex != -1 {
		t.Errorf("expected no title line, got index %d", res.TitleIndex)
	}

	empty := Classify("blank", nil)
	if empty.Title != "blank" || len(empty.Lines) != 0 {
		t.Errorf("unexpected result for empty document: %+v", empty)
	}
}

func TestClassify_ColonProseIsNotStrictHeading(t *testing.T) {
	lines := []doctree.Line{line("Travel Handbook", 28, 1, 40)}
	for i := 0; i < 5; i++ {
		lines = append(lines,
			line("Pro tip: book your flights early and compare fares across several sites.", 14, i+1, 100),
			line("Prices rise in summer.", 10, i+1, 120),
		)
	}
	res := Classify("handbook", lines)
	if res.StrictCount != 0 {
		t.Errorf("expected no strict headings, got %d", res.StrictCount)
	}
	if res.Pass != PassFallback {
		t.Errorf("expected size-only pass, got %s", res.Pass)
	}
}

func TestClassify_RunningHeadersCountOnce(t *testing.T) {
	// Five strict heading lines, but only two distinct ones.
	lines := []doctree.Line{
		line("Annual Report", 28, 1, 40),
		line("Key Findings", 20, 1, 100),
		line("Acme Corp Quarterly", 16, 1, 10),
		line("Acme Corp Quarterly", 16, 2, 10),
		line("ACME CORP  Quarterly", 16, 3, 10),
		line("Acme Corp Quarterly", 16, 4, 10),
		line("Body text continues here.", 10, 2, 80),
	}
	res := Classify("report", lines)
	if res.StrictCount != 2 {
		t.Errorf("expected 2 distinct strict headings, got %d", res.StrictCount)
	}
	if res.Pass != PassFallback {
		t.Errorf("expected size-only pass, got %s", res.Pass)
	}
}

func TestClassify_HeadingCount(t *testing.T) {
	res := Classify("guide", strictDoc())
	if n := res.HeadingCount(); n != 5 {
		t.Errorf("expected 5 headings, got %d", n)
	}
}
