package render

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/texdesk/internal/stats"
)

func newTestRenderer() *Renderer {
	return New(Options{Macros: map[string]string{`\R`: `\mathbb{R}`}})
}

func TestMarkdown_HeadingAndParagraph(t *testing.T) {
	res := newTestRenderer().Markdown(context.Background(), "# Hi\n\nText")
	if res.Degraded {
		t.Fatal("unexpected degraded result")
	}
	for _, want := range []string{`<h1 id="hi">Hi</h1>`, "<p>Text</p>"} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("expected %q in %q", want, res.HTML)
		}
	}
}

func TestLaTeX_InlineMath(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), `Let $x^2$ be positive.`)
	for _, want := range []string{`<span class="math-inline"><math`, `display="inline"`, "<msup>"} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("expected %q in %q", want, res.HTML)
		}
	}
	if strings.Contains(res.HTML, "$x^2$") {
		t.Errorf("math delimiters left in output: %q", res.HTML)
	}
}

func TestLaTeX_DisplayMath(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), "Before\n\\[ a+b \\]\nAfter")
	for _, want := range []string{`<div class="math-display"><math`, `display="block"`, "<p>Before</p>", "<p>After</p>"} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("expected %q in %q", want, res.HTML)
		}
	}
}

func TestMarkdown_SingleLineDisplayMath(t *testing.T) {
	res := newTestRenderer().Markdown(context.Background(), "$$x$$\n\nnext")
	if !strings.Contains(res.HTML, `<div class="math-display">`) || !strings.Contains(res.HTML, "<p>next</p>") {
		t.Errorf("unexpected output %q", res.HTML)
	}
}

func TestMarkdown_FencedMath(t *testing.T) {
	res := newTestRenderer().Markdown(context.Background(), "```math\ny=2\n```\n")
	if !strings.Contains(res.HTML, `<div class="math-display"><math`) {
		t.Errorf("expected math block, got %q", res.HTML)
	}
}

func TestMarkdown_DisplayMathInsideListItem(t *testing.T) {
	res := newTestRenderer().Markdown(context.Background(), "1. Solve\n\n   $$\n   x=1\n   $$\n")
	li := strings.Index(res.HTML, "<li>")
	math := strings.Index(res.HTML, `class="math-display"`)
	end := strings.Index(res.HTML, "</li>")
	if li < 0 || math < li || end < math {
		t.Errorf("expected display math inside the list item, got %q", res.HTML)
	}
}

func TestLaTeX_EscapedDollar(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), `Cost is \$5 and $y$ more`)
	if !strings.Contains(res.HTML, "Cost is $5 and") {
		t.Errorf("expected literal dollar, got %q", res.HTML)
	}
	if n := strings.Count(res.HTML, `class="math-inline"`); n != 1 {
		t.Errorf("expected one math span, got %d in %q", n, res.HTML)
	}
}

func TestLaTeX_TableWithMath(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), "\\begin{tabular}{cc}\n$x$ & $|x|$ \\\\\n1 & 1\n\\end{tabular}")
	for _, want := range []string{"<table>", "<th>", "<math"} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("expected %q in %q", want, res.HTML)
		}
	}
}

func TestLaTeX_TheoremContainer(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), "\\begin{theorem}\nEvery $n$ works.\n\\end{theorem}")
	if !strings.Contains(res.HTML, `<div class="theorem">`) || !strings.Contains(res.HTML, "</div>") {
		t.Errorf("expected theorem container, got %q", res.HTML)
	}
}

func TestLaTeX_TheoremInsideListItem(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(),
		"\\begin{itemize}\n\\item \\begin{theorem}\nEvery $n$ works.\n\\end{theorem}\n\\item Next\n\\end{itemize}")
	open := strings.Index(res.HTML, "<ul>")
	div := strings.Index(res.HTML, `<div class="theorem">`)
	closeDiv := strings.Index(res.HTML, "</div>")
	end := strings.Index(res.HTML, "</ul>")
	if open < 0 || div < open || closeDiv < div || end < closeDiv {
		t.Errorf("expected theorem container inside the list, got %q", res.HTML)
	}
	if strings.Contains(res.HTML, "<li></li>") {
		t.Errorf("unexpected empty list item in %q", res.HTML)
	}
}

func TestLaTeX_HighlightedListing(t *testing.T) {
	res := newTestRenderer().LaTeX(context.Background(), "\\begin{lstlisting}[language=Python]\nprint(1)\n\\end{lstlisting}")
	if !strings.Contains(res.HTML, `class="chroma"`) {
		t.Errorf("expected highlighted code, got %q", res.HTML)
	}
	if strings.Contains(res.HTML, "tabindex") {
		t.Errorf("unexpected attribute survived sanitizing: %q", res.HTML)
	}
}

func TestLaTeX_CanceledContextDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestRenderer().LaTeX(ctx, "<b>$x$</b>")
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.HTML != "<pre>&lt;b&gt;$x$&lt;/b&gt;</pre>" {
		t.Errorf("unexpected fallback %q", res.HTML)
	}
}

func TestRender_RecordsLatency(t *testing.T) {
	w := stats.NewWindow(time.Hour)
	r := New(Options{Stats: w})
	r.Markdown(context.Background(), "hello")
	if got := w.Snapshot().Count; got != 1 {
		t.Errorf("expected one latency sample, got %d", got)
	}
}

func TestPage(t *testing.T) {
	page := Page("A <b> title", "<p>body</p>")
	for _, want := range []string{"<!DOCTYPE html>", "<title>A &lt;b&gt; title</title>", "<p>body</p>", ".math-display"} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %q in page", want)
		}
	}
}

func TestOutlineLaTeX(t *testing.T) {
	in := "\\title{HW}\n\\begin{document}\n\\maketitle\nIntro words.\n\\section{One}\nA\n\\subsection{Two}\nB\n\\section{Three}\nC\n\\end{document}"
	tree := newTestRenderer().OutlineLaTeX(in, "file.tex")
	if tree.Title != "HW" {
		t.Errorf("expected title HW, got %q", tree.Title)
	}
	var titles []string
	for _, c := range tree.Children {
		titles = append(titles, c.Title)
	}
	if strings.Join(titles, ",") != "HW,One,Three" {
		t.Fatalf("unexpected top-level sections %q", titles)
	}
	one := tree.Children[1]
	if one.Anchor != "one" || one.Text != "A" || one.Level != 1 {
		t.Errorf("unexpected section %+v", one)
	}
	if len(one.Children) != 1 || one.Children[0].Title != "Two" || one.Children[0].Level != 2 {
		t.Errorf("expected nested subsection, got %+v", one.Children)
	}
	if tree.Count() != 4 {
		t.Errorf("expected 4 sections, got %d", tree.Count())
	}
}

func TestOutline_FallbackTitleAndPreface(t *testing.T) {
	tree := newTestRenderer().Outline("just text with $x$", "notes.tex")
	if tree.Title != "notes.tex" {
		t.Errorf("expected fallback title, got %q", tree.Title)
	}
	if tree.Preface != "just text with $x$" {
		t.Errorf("unexpected preface %q", tree.Preface)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected no sections, got %d", len(tree.Children))
	}
}
