package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"git.sr.ht/~mekyt/latex2mathml"
)

const mathMLNamespace = "http://www.w3.org/1998/Math/MathML"

// latex2mathml keeps its command tables in package globals.
var convertMu sync.Mutex

// controlWordRe matches a control word or the \\ row separator, which must be
// consumed as a unit so "\\R" is not read as a macro.
var controlWordRe = regexp.MustCompile(`\\(?:\\|[A-Za-z]+)`)

// letterFontRe matches a font command applied to one letter. latex2mathml
// drops these fonts, so the letter is replaced by its Unicode form.
var letterFontRe = regexp.MustCompile(`\\(mathbb|mathcal)\s*\{\s*([A-Za-z])\s*\}`)

// Letters that live in the Letterlike Symbols block instead of the
// Mathematical Alphanumeric Symbols run.
var (
	doubleStruckHoles = map[byte]rune{
		'C': 'ℂ', 'H': 'ℍ', 'N': 'ℕ', 'P': 'ℙ', 'Q': 'ℚ', 'R': 'ℝ', 'Z': 'ℤ',
	}
	scriptHoles = map[byte]rune{
		'B': 'ℬ', 'E': 'ℰ', 'F': 'ℱ', 'H': 'ℋ', 'I': 'ℐ', 'L': 'ℒ', 'M': 'ℳ', 'R': 'ℛ',
		'e': 'ℯ', 'g': 'ℊ', 'o': 'ℴ',
	}
)

func lowerLetterFonts(src string) string {
	if !strings.Contains(src, `\math`) {
		return src
	}
	return letterFontRe.ReplaceAllStringFunc(src, func(m string) string {
		g := letterFontRe.FindStringSubmatch(m)
		return string(letterFont(g[1], g[2][0]))
	})
}

// letterFont maps an ASCII letter to its double-struck or script form.
func letterFont(font string, c byte) rune {
	holes, upper, lower := doubleStruckHoles, rune(0x1D538), rune(0x1D552)
	if font == "mathcal" {
		holes, upper, lower = scriptHoles, 0x1D49C, 0x1D4B6
	}
	if r, ok := holes[c]; ok {
		return r
	}
	if c >= 'a' {
		return lower + rune(c-'a')
	}
	return upper + rune(c-'A')
}

// Typesetter turns math source into MathML. It is safe for concurrent use.
type Typesetter struct {
	macros map[string]string
}

// NewTypesetter returns a typesetter that expands the given macros before
// conversion. Keys are control words such as `\R`.
func NewTypesetter(macros map[string]string) *Typesetter {
	m := make(map[string]string, len(macros))
	for k, v := range macros {
		if k != `\\` && controlWordRe.FindString(k) == k {
			m[k] = v
		}
	}
	return &Typesetter{macros: m}
}

// Expand replaces whole control words that name a macro. `\R` does not match
// inside `\Rightarrow`.
func (t *Typesetter) Expand(src string) string {
	if len(t.macros) == 0 || !strings.Contains(src, `\`) {
		return src
	}
	return controlWordRe.ReplaceAllStringFunc(src, func(w string) string {
		if v, ok := t.macros[w]; ok {
			return v
		}
		return w
	})
}

// Inline typesets src for use inside running text.
func (t *Typesetter) Inline(src string) string {
	return t.typeset(src, "inline")
}

// Display typesets src as a centered block.
func (t *Typesetter) Display(src string) string {
	return t.typeset(src, "block")
}

func (t *Typesetter) typeset(src, display string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	out, err := convert(lowerLetterFonts(t.Expand(src)), display)
	if err != nil || !strings.Contains(out, "<math") {
		return `<code class="math-error">` + html.EscapeString(src) + `</code>`
	}
	return out
}

func convert(latex, display string) (out string, err error) {
	convertMu.Lock()
	defer convertMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("typeset: %v", r)
		}
	}()
	return latex2mathml.Convert(latex, mathMLNamespace, display, 0), nil
}
