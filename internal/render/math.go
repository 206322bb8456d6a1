package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	KindMathInline = ast.NewNodeKind("MathInline")
	KindMathBlock  = ast.NewNodeKind("MathBlock")
)

// MathInline is a $...$ span inside running text.
type MathInline struct {
	ast.BaseInline
	Segment text.Segment
}

func (n *MathInline) Kind() ast.NodeKind { return KindMathInline }

func (n *MathInline) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Math": string(n.Segment.Value(source))}, nil)
}

// MathBlock is a $$...$$ display block. Its lines hold the math source.
type MathBlock struct {
	ast.BaseBlock
	closed bool
}

func (n *MathBlock) Kind() ast.NodeKind { return KindMathBlock }

func (n *MathBlock) IsRaw() bool { return true }

func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// Source returns the math text of the block.
func (n *MathBlock) Source(source []byte) string {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimSpace(b.String())
}

type mathInlineParser struct{}

func (mathInlineParser) Trigger() []byte { return []byte{'$'} }

func (mathInlineParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	if prev := block.PrecendingCharacter(); prev == '$' || prev == '\\' {
		return nil
	}
	line, seg := block.PeekLine()
	if len(line) < 3 || line[1] == '$' {
		return nil
	}
	end := -1
scan:
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '\n':
			return nil
		case '$':
			end = i
			break scan
		}
	}
	if end < 2 {
		return nil
	}
	node := &MathInline{Segment: text.NewSegment(seg.Start+1, seg.Start+end)}
	block.Advance(end + 1)
	return node
}

type mathBlockParser struct{}

func (mathBlockParser) Trigger() []byte { return []byte{'$'} }

func (mathBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || !bytes.HasPrefix(line[pos:], []byte("$$")) {
		return nil, parser.NoChildren
	}
	node := &MathBlock{}
	start := segment.Start - segment.Padding + pos + 2
	rest := bytes.TrimRight(line[pos+2:], " \t\r\n")
	if len(rest) == 0 {
		return node, parser.NoChildren
	}
	// $$x$$ on one line.
	if bytes.HasSuffix(rest, []byte("$$")) {
		node.Lines().Append(text.NewSegment(start, start+len(rest)-2))
		node.closed = true
		return node, parser.NoChildren
	}
	node.Lines().Append(text.NewSegment(start, start+len(rest)))
	return node, parser.NoChildren
}

func (mathBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	n := node.(*MathBlock)
	if n.closed {
		return parser.Close
	}
	line, segment := reader.PeekLine()
	if line == nil {
		return parser.Close
	}
	trimmed := bytes.TrimRight(line, " \t\r\n")
	if bytes.HasSuffix(trimmed, []byte("$$")) {
		body := trimmed[:len(trimmed)-2]
		if len(bytes.TrimSpace(body)) > 0 {
			start := segment.Start - segment.Padding
			n.Lines().Append(text.NewSegment(start, start+len(body)))
		}
		newline := 1
		if line[len(line)-1] != '\n' {
			newline = 0
		}
		reader.Advance(segment.Stop - segment.Start - newline + segment.Padding)
		n.closed = true
		return parser.Close
	}
	n.Lines().Append(segment)
	reader.Advance(segment.Len() - 1)
	return parser.Continue | parser.NoChildren
}

func (mathBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (mathBlockParser) CanInterruptParagraph() bool { return true }

func (mathBlockParser) CanAcceptIndentedLine() bool { return false }

// fencedMath turns ```math fences into display blocks.
type fencedMath struct{}

func (fencedMath) Transform(document *ast.Document, reader text.Reader, _ parser.Context) {
	var nodes []ast.Node
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fenced, ok := node.(*ast.FencedCodeBlock); ok && bytes.Equal(fenced.Language(reader.Source()), []byte("math")) {
			nodes = append(nodes, fenced)
		}
		return ast.WalkContinue, nil
	})
	for _, node := range nodes {
		if parent := node.Parent(); parent != nil {
			mb := &MathBlock{closed: true}
			mb.SetLines(node.Lines())
			parent.ReplaceChild(parent, node, mb)
		}
	}
}

type mathRenderer struct {
	ts *Typesetter
}

func (r mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathInline, r.renderInline)
	reg.Register(KindMathBlock, r.renderBlock)
}

func (r mathRenderer) renderInline(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		n := node.(*MathInline)
		_, _ = w.WriteString(`<span class="math-inline">`)
		_, _ = w.WriteString(r.ts.Inline(string(n.Segment.Value(source))))
		_, _ = w.WriteString(`</span>`)
	}
	return ast.WalkSkipChildren, nil
}

func (r mathRenderer) renderBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		n := node.(*MathBlock)
		_, _ = w.WriteString(`<div class="math-display">`)
		_, _ = w.WriteString(r.ts.Display(n.Source(source)))
		_, _ = w.WriteString("</div>\n")
	}
	return ast.WalkSkipChildren, nil
}

// mathExtension adds $ and $$ math to a goldmark instance.
type mathExtension struct {
	ts *Typesetter
}

func (e mathExtension) Extend(markdown goldmark.Markdown) {
	markdown.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(mathBlockParser{}, 650)),
		parser.WithInlineParsers(util.Prioritized(mathInlineParser{}, 150)),
		parser.WithASTTransformers(util.Prioritized(fencedMath{}, 100)),
	)
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(mathRenderer{ts: e.ts}, 100)),
	)
}
