// Package rewrite lowers LaTeX source to Markdown with math delimiters.
//
// The conversion is a fixed, ordered list of syntactic rules. It is total:
// anything a rule does not recognize passes through untouched. Spans that
// later rules must not see (verbatim text, math) are swapped for opaque
// placeholders early and restored once every rule has run.
package rewrite

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule is one rewrite step.
type Rule struct {
	Name      string
	Rationale string
	apply     func(src string, st *stash) string
}

// Apply runs the rule alone against src and restores any spans it stashed.
func (r Rule) Apply(src string) string {
	st := &stash{}
	return st.restore(r.apply(src, st))
}

// Rules returns the ordered rule list. The slice is a copy.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Lookup finds a rule by name.
func Lookup(name string) (Rule, bool) {
	for _, r := range rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// Rewrite converts LaTeX source into Markdown understood by the renderer.
func Rewrite(latex string) string {
	out, _ := rewrite(latex)
	return out
}

func rewrite(latex string) (string, *stash) {
	st := &stash{}
	s := latex
	for _, r := range rules {
		s = r.apply(s, st)
	}
	return st.restore(s), st
}

var rules = []Rule{
	{
		Name:      "normalize",
		Rationale: "CRLF and stray placeholder runes would confuse every later pattern",
		apply:     normalize,
	},
	{
		Name:      "verbatim",
		Rationale: "verbatim, lstlisting and minted bodies must reach the output byte for byte, so they are hidden before any other rule runs",
		apply:     protectVerbatim,
	},
	{
		Name:      "inline-verb",
		Rationale: `\verb spans may contain $, % and braces`,
		apply:     protectInlineVerb,
	},
	{
		Name:      "comments",
		Rationale: `a % comment can swallow delimiters; \% stays literal`,
		apply:     stripComments,
	},
	{
		Name:      "display-math",
		Rationale: "must precede inline math so $$ and \\[ are not split into inline spans; align bodies keep & and \\\\ because they are hidden from the tabular and line-break rules",
		apply:     protectDisplayMath,
	},
	{
		Name:      "inline-math",
		Rationale: "hides math before emphasis and tables can see * _ | & inside it; \\$ never opens or closes a span",
		apply:     protectInlineMath,
	},
	{
		Name:      "preamble",
		Rationale: "document setup commands become metadata lines; other preamble content is left in place",
		apply:     rewritePreamble,
	},
	{
		Name:      "sectioning",
		Rationale: "headings must stand on their own line before lists re-indent text",
		apply:     rewriteSectioning,
	},
	{
		Name:      "theorems",
		Rationale: "environment wrappers become labeled containers before lists indent their contents",
		apply:     rewriteTheorems,
	},
	{
		Name:      "tabular",
		Rationale: "consumes & and \\\\ inside tables before the line-break rule turns \\\\ into <br />",
		apply:     rewriteTabular,
	},
	{
		Name:      "lists",
		Rationale: "runs after every block-producing rule so nested blocks get indented into their item",
		apply:     rewriteLists,
	},
	{
		Name:      "emphasis",
		Rationale: "inline commands only; math is already hidden",
		apply:     rewriteEmphasis,
	},
	{
		Name:      "layout",
		Rationale: "spacing and line-break commands; last because \\\\ is meaningful to tables and math",
		apply:     rewriteLayout,
	},
}

const (
	phOpen  = '\uE000'
	phClose = '\uE001'
)

const (
	kindDisplay = 'M'
	kindInline  = 'm'
	kindCode    = 'C'
	kindVerb    = 'c'
)

var placeholderRe = regexp.MustCompile(`\x{E000}([A-Za-z])(\d+)\x{E001}`)

type span struct {
	kind    byte
	body    string
	lang    string
	inTable bool
}

// stash holds spans hidden from later rules.
type stash struct {
	spans []span
}

func (st *stash) put(kind byte, body, lang string) string {
	st.spans = append(st.spans, span{kind: kind, body: body, lang: lang})
	return string(phOpen) + string(rune(kind)) + strconv.Itoa(len(st.spans)-1) + string(phClose)
}

func (st *stash) lookup(ph string) (*span, bool) {
	m := placeholderRe.FindStringSubmatch(ph)
	if m == nil {
		return nil, false
	}
	i, err := strconv.Atoi(m[2])
	if err != nil || i >= len(st.spans) || st.spans[i].kind != m[1][0] {
		return nil, false
	}
	return &st.spans[i], true
}

// math returns the bodies of all math spans in stash order.
func (st *stash) math() []string {
	var out []string
	for _, sp := range st.spans {
		if sp.kind == kindDisplay || sp.kind == kindInline {
			out = append(out, sp.body)
		}
	}
	return out
}

// restore substitutes every placeholder. Multi-line replacements inherit the
// indentation of the line the placeholder sits on so they stay inside list
// items.
func (st *stash) restore(s string) string {
	if !strings.ContainsRune(s, phOpen) {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:loc[0]])
		last = loc[1]

		sp, ok := st.lookup(s[loc[0]:loc[1]])
		if !ok {
			continue
		}
		text := sp.render()
		if strings.Contains(text, "\n") {
			if indent := lineIndent(s, loc[0]); indent != "" {
				text = strings.ReplaceAll(text, "\n", "\n"+indent)
			}
		}
		b.WriteString(text)
	}
	b.WriteString(s[last:])
	return b.String()
}

func (sp *span) render() string {
	switch sp.kind {
	case kindDisplay:
		return "$$\n" + sp.body + "\n$$"
	case kindInline:
		body := collapseSpace(sp.body)
		if sp.inTable {
			body = strings.ReplaceAll(body, `\|`, `\Vert `)
			body = strings.ReplaceAll(body, "|", `\vert `)
		}
		return "$" + body + "$"
	case kindCode:
		fence := "```"
		for strings.Contains(sp.body, fence) {
			fence += "`"
		}
		return fence + sp.lang + "\n" + sp.body + "\n" + fence
	case kindVerb:
		tick := "`"
		for strings.Contains(sp.body, tick) {
			tick += "`"
		}
		if strings.HasPrefix(sp.body, "`") || strings.HasSuffix(sp.body, "`") {
			return tick + " " + sp.body + " " + tick
		}
		return tick + sp.body + tick
	}
	return sp.body
}

var itemPrefixRe = regexp.MustCompile(`^ *(?:[-*+]|\d+[.)]) +$`)

// lineIndent returns the run of spaces that starts the line containing pos.
// When only a list marker precedes pos, the indent reaches the item's
// content column instead.
func lineIndent(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	if itemPrefixRe.MatchString(s[start:pos]) {
		return strings.Repeat(" ", pos-start)
	}
	end := start
	for end < pos && s[end] == ' ' {
		end++
	}
	return s[start:end]
}

var spaceRunRe = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// block pads text with blank lines so Markdown treats it as its own block.
func block(text string) string {
	return "\n\n" + text + "\n\n"
}

// replaceSubmatch is ReplaceAllStringFunc with access to capture groups.
func replaceSubmatch(re *regexp.Regexp, src string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(src, -1)
	if matches == nil {
		return src
	}
	var b strings.Builder
	last := 0
	for _, loc := range matches {
		b.WriteString(src[last:loc[0]])
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = src[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(fn(groups))
		last = loc[1]
	}
	b.WriteString(src[last:])
	return b.String()
}

// braced matches one brace group allowing a single level of nesting.
const braced = `\{((?:[^{}]|\{[^{}]*\})*)\}`
