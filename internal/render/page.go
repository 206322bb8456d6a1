package render

import (
	"fmt"
	"html"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { max-width: 46rem; margin: 2rem auto; padding: 0 1rem; font-family: Georgia, serif; line-height: 1.5; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.6rem; }
.math-display { margin: 1rem 0; text-align: center; overflow-x: auto; }
.math-error { color: #b00020; }
.theorem, .lemma, .proposition, .corollary, .definition, .example, .remark,
.exercise, .problem, .solution, .proof { margin: 1rem 0; padding: 0.5rem 1rem; border-left: 3px solid #888; }
%s
</style>
</head>
<body>
%s
</body>
</html>`

var (
	codeCSSOnce sync.Once
	codeCSS     string
)

// highlightCSS returns the stylesheet for class-based code highlighting.
func highlightCSS() string {
	codeCSSOnce.Do(func() {
		var b strings.Builder
		if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&b, styles.Get("github")); err == nil {
			codeCSS = b.String()
		}
	})
	return codeCSS
}

// Page wraps a rendered fragment in a standalone HTML document.
func Page(title, body string) string {
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), highlightCSS(), body)
}
