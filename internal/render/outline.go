package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/texdesk/internal/doctree"
	"github.com/dgallion1/texdesk/internal/rewrite"
)

// OutlineLaTeX rewrites latex and builds its heading outline.
func (r *Renderer) OutlineLaTeX(latex, fallbackTitle string) *doctree.DocTree {
	return r.Outline(rewrite.Rewrite(latex), fallbackTitle)
}

// Outline builds a heading tree from Markdown. The title is the first
// level-one heading, or fallbackTitle when there is none.
func (r *Renderer) Outline(markdown, fallbackTitle string) *doctree.DocTree {
	src := []byte(markdown)
	doc := r.md.Parser().Parse(text.NewReader(src))

	tree := &doctree.DocTree{Title: fallbackTitle}

	type stackEntry struct {
		node  *doctree.DocNode
		level int
	}
	root := &doctree.DocNode{}
	stack := []stackEntry{{node: root, level: 0}}

	var current bytes.Buffer
	flushText := func() {
		t := strings.TrimSpace(current.String())
		current.Reset()
		if t == "" {
			return
		}
		top := stack[len(stack)-1].node
		if top.Text != "" {
			top.Text += "\n\n" + t
		} else {
			top.Text = t
		}
	}

	titled := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok {
			if t := plainText(n, src); t != "" {
				if current.Len() > 0 {
					current.WriteString("\n\n")
				}
				current.WriteString(t)
			}
			continue
		}
		flushText()
		title := plainText(heading, src)
		if !titled && heading.Level == 1 {
			tree.Title = title
			titled = true
		}
		node := &doctree.DocNode{Title: title, Level: heading.Level}
		if id, ok := heading.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				node.Anchor = string(b)
			}
		}
		for len(stack) > 1 && stack[len(stack)-1].level >= heading.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, stackEntry{node: node, level: heading.Level})
	}
	flushText()

	tree.Preface = root.Text
	tree.Children = root.Children
	return tree
}

// plainText flattens a node to text. Math keeps its source between dollar
// signs; raw blocks contribute their lines.
func plainText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writePlain(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writePlain(buf *bytes.Buffer, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Text:
		buf.Write(node.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			buf.WriteByte('\n')
		}
		return
	case *ast.String:
		buf.Write(node.Value)
		return
	case *MathInline:
		buf.WriteString("$" + string(node.Segment.Value(src)) + "$")
		return
	case *MathBlock:
		buf.WriteString("$$" + node.Source(src) + "$$")
		return
	case *ast.RawHTML, *ast.HTMLBlock:
		return
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return
	case *ast.ListItem, *east.TableRow, *east.TableHeader:
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
	case *east.TableCell:
		if prev := n.PreviousSibling(); prev != nil {
			buf.WriteString("\t")
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writePlain(buf, c, src)
		if c.Type() == ast.TypeBlock && c.NextSibling() != nil && c.NextSibling().Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
	}
}
