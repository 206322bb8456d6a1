// Package doctree holds the heading outline of a rendered document.
package doctree

// DocTree is the root of a document outline.
type DocTree struct {
	Title    string     `json:"title"`              // Document title (first top-level heading or file name)
	Preface  string     `json:"preface,omitempty"`  // Text before the first heading
	Children []*DocNode `json:"sections,omitempty"` // Top-level sections
}

// DocNode is a recursive section in the outline.
type DocNode struct {
	Title    string     `json:"title"`
	Anchor   string     `json:"anchor,omitempty"` // Heading id in the rendered HTML
	Level    int        `json:"level"`
	Text     string     `json:"text,omitempty"` // Plain text of the blocks under this heading
	Children []*DocNode `json:"children,omitempty"`
}

// Walk visits every node depth first. depth is 0 for top-level sections.
func (t *DocTree) Walk(fn func(n *DocNode, depth int)) {
	var walk func(nodes []*DocNode, depth int)
	walk = func(nodes []*DocNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(t.Children, 0)
}

// Count returns the number of sections in the tree.
func (t *DocTree) Count() int {
	n := 0
	t.Walk(func(*DocNode, int) { n++ })
	return n
}
