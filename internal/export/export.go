// Package export writes a document in downloadable formats.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/texdesk/internal/doctree"
)

const (
	TeXContentType  = "application/x-tex"
	DOCXContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Run sizes are in half-points.
var headingSizes = map[int]string{1: "32", 2: "28", 3: "26", 4: "24", 5: "22", 6: "22"}

const titleSize = "40"

// Filename swaps the extension of a document's name, falling back to
// "homework" for names with nothing usable left.
func Filename(name, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '"', r == '\\', r == '/':
			return -1
		}
		return r
	}, strings.TrimSpace(base))
	if base == "" || base == "." {
		base = "homework"
	}
	return base + ext
}

// DOCX writes the outline as a Word document: the title, the preface, then
// each section heading followed by its text.
func DOCX(w io.Writer, tree *doctree.DocTree) error {
	doc := docx.New().WithDefaultTheme()

	sections := tree.Children
	if tree.Title != "" && !(len(sections) > 0 && sections[0].Level == 1 && sections[0].Title == tree.Title) {
		doc.AddParagraph().Style("Title").AddText(tree.Title).Bold().Size(titleSize)
	}
	addText(doc, tree.Preface)

	tree.Walk(func(n *doctree.DocNode, _ int) {
		level := min(max(n.Level, 1), 6)
		if n.Title != "" {
			doc.AddParagraph().
				Style(fmt.Sprintf("Heading%d", level)).
				AddText(n.Title).Bold().Size(headingSizes[level])
		}
		addText(doc, n.Text)
	})

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// addText writes one paragraph per blank-line separated block.
func addText(doc *docx.Docx, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			doc.AddParagraph().AddText(para)
		}
	}
}
