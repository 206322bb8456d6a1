package rewrite

import (
	"bytes"
	"regexp"
	"strings"
)

var listTokenRe = regexp.MustCompile(`\\(begin|end)\{(itemize|enumerate|description)\}|\\item\b(?:\[([^\]]*)\])?[ \t]*`)

type listFrame struct {
	marker  string
	indent  int // column of the item marker
	content int // column of the item text
}

// rewriteLists turns list environments into Markdown list items with a
// stack, so nesting depth decides indentation. Text inside an item is
// re-indented to the item's content column; unbalanced \end tokens are
// dropped.
func rewriteLists(src string, _ *stash) string {
	matches := listTokenRe.FindAllStringSubmatchIndex(src, -1)
	if matches == nil {
		return src
	}

	var out bytes.Buffer
	var stack []listFrame
	last := 0
	floor := 0 // trimming never eats separators written by begin/end
	// A Markdown item that opens with a blank line is empty, so block
	// content right after a bare marker moves up onto the marker line.
	bareItem := false

	contentIndent := func() int {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1].content
	}
	trimOut := func() {
		out.Truncate(max(floor, len(bytes.TrimRight(out.Bytes(), " \t\n"))))
	}

	text := func(s string) string {
		if bareItem {
			s = strings.TrimLeft(s, " \t\n")
		}
		bareItem = false
		return s
	}

	for _, loc := range matches {
		writeListText(&out, text(src[last:loc[0]]), len(stack) > 0, contentIndent())
		last = loc[1]

		group := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}
			return src[loc[2*i]:loc[2*i+1]]
		}

		switch group(1) {
		case "begin":
			trimOut()
			if len(stack) == 0 {
				out.WriteString("\n\n")
				floor = out.Len()
			}
			marker := "- "
			if group(2) == "enumerate" {
				marker = "1. "
			}
			indent := contentIndent()
			stack = append(stack, listFrame{marker: marker, indent: indent, content: indent + len(marker)})
		case "end":
			if len(stack) == 0 {
				continue
			}
			trimOut()
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				out.WriteString("\n\n")
				floor = out.Len()
			} else {
				out.WriteString("\n")
			}
		default:
			frame := listFrame{marker: "- ", content: 2}
			if len(stack) > 0 {
				frame = stack[len(stack)-1]
			}
			trimOut()
			if out.Len() > floor {
				out.WriteString("\n")
			}
			out.WriteString(strings.Repeat(" ", frame.indent))
			out.WriteString(frame.marker)
			if label := collapseSpace(group(3)); label != "" {
				out.WriteString("**" + label + "** ")
			} else {
				bareItem = true
			}
		}
	}
	writeListText(&out, text(src[last:]), len(stack) > 0, contentIndent())
	return out.String()
}

// writeListText copies text between list tokens. Inside a list the first line
// continues the current item and later lines move to the content column.
func writeListText(out *bytes.Buffer, text string, inList bool, indent int) {
	if !inList {
		out.WriteString(text)
		return
	}
	pad := strings.Repeat(" ", indent)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(line, " \t")
		if i > 0 {
			out.WriteString("\n")
			if line != "" {
				out.WriteString(pad)
			}
		}
		out.WriteString(line)
	}
}
