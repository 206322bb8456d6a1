package rewrite

import (
	"regexp"
	"strings"
)

func normalize(src string, _ *stash) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == phOpen || r == phClose {
			return -1
		}
		return r
	}, src)
}

var (
	verbatimRe    = regexp.MustCompile(`(?s)\\begin\{verbatim\*?\}\n?(.*?)\n?[ \t]*\\end\{verbatim\*?\}`)
	lstlistingRe  = regexp.MustCompile(`(?s)\\begin\{lstlisting\}(\[[^\]]*\])?\n?(.*?)\n?[ \t]*\\end\{lstlisting\}`)
	mintedRe      = regexp.MustCompile(`(?s)\\begin\{minted\}(?:\[[^\]]*\])?\{([^}]*)\}\n?(.*?)\n?[ \t]*\\end\{minted\}`)
	lstLanguageRe = regexp.MustCompile(`language\s*=\s*\{?([A-Za-z0-9+#-]+)`)
)

func protectVerbatim(src string, st *stash) string {
	src = replaceSubmatch(verbatimRe, src, func(g []string) string {
		return block(st.put(kindCode, g[1], ""))
	})
	src = replaceSubmatch(lstlistingRe, src, func(g []string) string {
		lang := ""
		if m := lstLanguageRe.FindStringSubmatch(g[1]); m != nil {
			lang = strings.ToLower(m[1])
		}
		return block(st.put(kindCode, g[2], lang))
	})
	return replaceSubmatch(mintedRe, src, func(g []string) string {
		return block(st.put(kindCode, g[2], strings.ToLower(strings.TrimSpace(g[1]))))
	})
}

// protectInlineVerb hides \verb|...| spans. The delimiter is any single
// non-letter character, so this is a scan rather than a pattern.
func protectInlineVerb(src string, st *stash) string {
	const cmd = `\verb`
	if !strings.Contains(src, cmd) {
		return src
	}
	var b strings.Builder
	for {
		i := strings.Index(src, cmd)
		if i < 0 {
			break
		}
		start := i + len(cmd)
		if start < len(src) && src[start] == '*' {
			start++
		}
		if start >= len(src) || isLetter(src[start]) || src[start] == ' ' || src[start] == '\n' {
			b.WriteString(src[:i+len(cmd)])
			src = src[i+len(cmd):]
			continue
		}
		delim := src[start]
		end := strings.IndexByte(src[start+1:], delim)
		nl := strings.IndexByte(src[start+1:], '\n')
		if end < 0 || (nl >= 0 && nl < end) {
			b.WriteString(src[:start+1])
			src = src[start+1:]
			continue
		}
		b.WriteString(src[:i])
		b.WriteString(st.put(kindVerb, src[start+1:start+1+end], ""))
		src = src[start+1+end+1:]
	}
	b.WriteString(src)
	return b.String()
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var commentLineRe = regexp.MustCompile(`(?m)^[ \t]*%.*\n?`)

func stripComments(src string, _ *stash) string {
	if !strings.Contains(src, "%") {
		return src
	}
	src = commentLineRe.ReplaceAllString(src, "")
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if at := commentStart(line); at >= 0 {
			lines[i] = line[:at]
		}
	}
	return strings.Join(lines, "\n")
}

// commentStart returns the index of the first % that opens a comment, or -1.
// A % escapes only behind an odd run of backslashes; `\\%` is a line break
// followed by a comment.
func commentStart(line string) int {
	slashes := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			slashes++
			continue
		case '%':
			if slashes%2 == 0 {
				return i
			}
		}
		slashes = 0
	}
	return -1
}

var (
	equationRe = regexp.MustCompile(`(?s)\\begin\{(?:equation\*?|displaymath)\}(.*?)\\end\{(?:equation\*?|displaymath)\}`)
	alignRe    = regexp.MustCompile(`(?s)\\begin\{(?:align|alignat|eqnarray|gather|multline|flalign)\*?\}(?:\{\d+\})?(.*?)\\end\{(?:align|alignat|eqnarray|gather|multline|flalign)\*?\}`)
	bracketRe  = regexp.MustCompile(`(?s)(^|[^\\])\\\[(.*?)\\\]`)
	dollarsRe  = regexp.MustCompile(`(?s)(^|[^\\])\$\$(.+?)\$\$`)
	mathNoteRe = regexp.MustCompile(`\\(?:label|tag\*?)\{[^}]*\}|\\nonumber|\\notag`)
)

func mathBody(body string) string {
	return strings.TrimSpace(mathNoteRe.ReplaceAllString(body, ""))
}

// protectDisplayMath hides every display form behind one placeholder kind.
// Alignment environments are re-wrapped as align* so the typesetter sees a
// single aligned block with its & and \\ markers intact.
func protectDisplayMath(src string, st *stash) string {
	src = replaceSubmatch(alignRe, src, func(g []string) string {
		body := `\begin{align*}` + "\n" + mathBody(g[1]) + "\n" + `\end{align*}`
		return block(st.put(kindDisplay, body, ""))
	})
	src = replaceSubmatch(equationRe, src, func(g []string) string {
		return block(st.put(kindDisplay, mathBody(g[1]), ""))
	})
	src = replaceSubmatch(bracketRe, src, func(g []string) string {
		return g[1] + block(st.put(kindDisplay, mathBody(g[2]), ""))
	})
	return replaceSubmatch(dollarsRe, src, func(g []string) string {
		return g[1] + block(st.put(kindDisplay, mathBody(g[2]), ""))
	})
}

var parenMathRe = regexp.MustCompile(`(?s)(^|[^\\])\\\((.+?)\\\)`)

func protectInlineMath(src string, st *stash) string {
	src = replaceSubmatch(parenMathRe, src, func(g []string) string {
		return g[1] + st.put(kindInline, g[2], "")
	})
	if !strings.Contains(src, "$") {
		return src
	}

	var b strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
			continue
		}
		if c == '$' {
			if end := closingDollar(src, i+1); end > i+1 {
				b.WriteString(st.put(kindInline, src[i+1:end], ""))
				i = end
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closingDollar finds the next unescaped $ after from, refusing to cross a
// paragraph break.
func closingDollar(src string, from int) int {
	for j := from; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '$':
			return j
		case '\n':
			if strings.TrimLeft(src[j+1:min(len(src), j+1+lineEnd(src[j+1:]))], " \t") == "" {
				return -1
			}
		}
	}
	return -1
}

func lineEnd(s string) int {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return i
	}
	return len(s)
}

var (
	documentclassRe = regexp.MustCompile(`\\documentclass(?:\[[^\]]*\])?\{[^}]*\}[ \t]*\n?`)
	usepackageRe    = regexp.MustCompile(`\\usepackage(?:\[[^\]]*\])?\{[^}]*\}[ \t]*\n?`)
	documentEnvRe   = regexp.MustCompile(`\\(?:begin|end)\{document\}`)
	maketitleRe     = regexp.MustCompile(`\\maketitle\b`)
	titleRe         = regexp.MustCompile(`\\title(?:\[[^\]]*\])?` + braced)
	authorRe        = regexp.MustCompile(`\\author(?:\[[^\]]*\])?` + braced)
	dateRe          = regexp.MustCompile(`\\date` + braced)
	andRe           = regexp.MustCompile(`\s*\\and\s*`)
)

// rewritePreamble drops document setup and maps title metadata. Anything else
// before \begin{document} (macro definitions, settings) is left in place.
func rewritePreamble(src string, _ *stash) string {
	src = documentclassRe.ReplaceAllString(src, "")
	src = usepackageRe.ReplaceAllString(src, "")
	src = documentEnvRe.ReplaceAllString(src, "")
	src = maketitleRe.ReplaceAllString(src, "")
	src = replaceSubmatch(titleRe, src, func(g []string) string {
		return block("# " + collapseSpace(g[1]))
	})
	src = replaceSubmatch(authorRe, src, func(g []string) string {
		return block("*Author: " + collapseSpace(andRe.ReplaceAllString(g[1], ", ")) + "*")
	})
	return replaceSubmatch(dateRe, src, func(g []string) string {
		return block("*Date: " + collapseSpace(g[1]) + "*")
	})
}

var sectionRe = regexp.MustCompile(`\\(section|subsection|subsubsection|paragraph)\*?(?:\[[^\]]*\])?` + braced)

var sectionLevels = map[string]string{
	"section":       "#",
	"subsection":    "##",
	"subsubsection": "###",
	"paragraph":     "####",
}

func rewriteSectioning(src string, _ *stash) string {
	return replaceSubmatch(sectionRe, src, func(g []string) string {
		return block(sectionLevels[g[1]] + " " + collapseSpace(g[2]))
	})
}

// TheoremEnvironments are rendered as labeled containers.
var TheoremEnvironments = []string{
	"theorem", "lemma", "definition", "proof", "proposition", "corollary",
	"example", "remark", "exercise", "problem", "solution",
}

var (
	theoremBeginRe = regexp.MustCompile(`\\begin\{(` + strings.Join(TheoremEnvironments, "|") + `)\*?\}(?:\[([^\]]*)\])?`)
	theoremEndRe   = regexp.MustCompile(`\\end\{(?:` + strings.Join(TheoremEnvironments, "|") + `)\*?\}`)
)

func rewriteTheorems(src string, _ *stash) string {
	src = replaceSubmatch(theoremBeginRe, src, func(g []string) string {
		open := `<div class="` + g[1] + `">`
		if note := collapseSpace(g[2]); note != "" {
			return block(open) + "**(" + note + ")** "
		}
		return block(open)
	})
	return theoremEndRe.ReplaceAllString(src, "\n\n</div>\n\n")
}

var emphasisRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\\textbf` + braced), "**$1**"},
	{regexp.MustCompile(`\\(?:emph|textit|textsl)` + braced), "*$1*"},
	{regexp.MustCompile(`\\texttt` + braced), "`$1`"},
	{regexp.MustCompile(`\\underline` + braced), "<u>$1</u>"},
}

// rewriteEmphasis repeats until stable so nested commands unwrap one level
// per pass.
func rewriteEmphasis(src string, _ *stash) string {
	for range 4 {
		before := src
		for _, r := range emphasisRules {
			src = r.re.ReplaceAllString(src, r.repl)
		}
		if src == before {
			break
		}
	}
	return src
}

var (
	vskipRe      = regexp.MustCompile(`\\vskip\s*-?[\d.]+\s*(?:in|pt|cm|mm|em|ex|bp)`)
	vspaceRe     = regexp.MustCompile(`\\(?:vspace|bigskip|medskip|smallskip|newpage|clearpage)\*?(?:\{[^}]*\})?`)
	hspaceRe     = regexp.MustCompile(`\\hspace\*?\{[^}]*\}`)
	centerlineRe = regexp.MustCompile(`\\centerline` + braced)
	centerEnvRe  = regexp.MustCompile(`\\(?:begin|end)\{center\}|\\centering\b`)
	noindentRe   = regexp.MustCompile(`\\noindent\b[ \t]*`)
	lineBreakRe  = regexp.MustCompile(`\\\\\*?(?:\[[^\]]*\])?[ \t]*|\\newline\b[ \t]*`)
)

func rewriteLayout(src string, _ *stash) string {
	src = vskipRe.ReplaceAllString(src, "\n\n")
	src = vspaceRe.ReplaceAllString(src, "\n\n")
	src = hspaceRe.ReplaceAllString(src, " ")
	src = centerlineRe.ReplaceAllString(src, "<center>$1</center>")
	src = centerEnvRe.ReplaceAllString(src, "\n\n")
	src = noindentRe.ReplaceAllString(src, "")
	return lineBreakRe.ReplaceAllString(src, "<br />")
}
