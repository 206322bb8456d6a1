package rewrite

import (
	"regexp"
	"strings"
)

var (
	tabularRe     = regexp.MustCompile(`(?s)\\begin\{tabular(?:\*\}\{[^{}]*\}|\})(?:` + braced + `)?(.*?)\\end\{tabular\*?\}`)
	tableEnvRe    = regexp.MustCompile(`\\(?:begin\{table\*?\}(?:\[[^\]]*\])?|end\{table\*?\})`)
	captionRe     = regexp.MustCompile(`\\caption(?:\[[^\]]*\])?` + braced)
	ruleLineRe    = regexp.MustCompile(`\\(?:hline|toprule|midrule|bottomrule)\b|\\cline\{[^}]*\}`)
	multicolumnRe = regexp.MustCompile(`\\multicolumn\{\d+\}\{[^}]*\}` + braced)
	rowSepRe      = regexp.MustCompile(`\\\\(?:\[[^\]]*\])?`)
)

// rewriteTabular lowers tabular environments to pipe tables. Rows split on
// \\ and cells on unescaped &; the header row is the first row and short
// rows are padded. Column specs are ignored.
func rewriteTabular(src string, st *stash) string {
	if !strings.Contains(src, `\begin{tabular`) {
		return src
	}
	src = replaceSubmatch(tabularRe, src, func(g []string) string {
		return block(pipeTable(g[2], st))
	})
	src = tableEnvRe.ReplaceAllString(src, "\n\n")
	return replaceSubmatch(captionRe, src, func(g []string) string {
		return block("*" + collapseSpace(g[1]) + "*")
	})
}

func pipeTable(body string, st *stash) string {
	body = ruleLineRe.ReplaceAllString(body, "")
	body = multicolumnRe.ReplaceAllString(body, "$1")

	var rows [][]string
	width := 0
	for _, raw := range rowSepRe.Split(body, -1) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		cells := splitCells(raw)
		for i, c := range cells {
			cells[i] = tableCell(c, st)
		}
		rows = append(rows, cells)
		width = max(width, len(cells))
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := range width {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			b.WriteString(" " + c + " |")
		}
		b.WriteString("\n")
	}
	writeRow(rows[0])
	b.WriteString("|")
	for range width {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// splitCells splits on & not preceded by a backslash.
func splitCells(row string) []string {
	var cells []string
	start := 0
	for i := 0; i < len(row); i++ {
		switch row[i] {
		case '\\':
			i++
		case '&':
			cells = append(cells, row[start:i])
			start = i + 1
		}
	}
	return append(cells, row[start:])
}

func tableCell(c string, st *stash) string {
	c = collapseSpace(c)
	c = strings.ReplaceAll(c, "|", `\|`)
	for _, ph := range placeholderRe.FindAllString(c, -1) {
		if sp, ok := st.lookup(ph); ok && sp.kind == kindInline {
			sp.inTable = true
		}
	}
	return c
}
