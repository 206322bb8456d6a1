package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var htmlTags = set(
	"p", "br", "hr", "h1", "h2", "h3", "h4", "h5", "h6",
	"strong", "em", "b", "i", "u", "s", "del", "sup", "sub", "code", "pre", "span", "div",
	"blockquote", "ul", "ol", "li", "dl", "dt", "dd",
	"table", "thead", "tbody", "tr", "th", "td",
	"a", "img", "center", "input",
)

var mathTags = set(
	"math", "mrow", "mi", "mn", "mo", "ms", "mtext", "mspace", "msup", "msub", "msubsup",
	"mfrac", "msqrt", "mroot", "mstyle", "mtable", "mtr", "mtd", "mlabeledtr",
	"munder", "mover", "munderover", "mpadded", "mphantom", "menclose", "merror",
	"mfenced", "mmultiscripts", "mprescripts", "none", "semantics", "annotation",
)

var htmlAttrs = set(
	"class", "id", "href", "src", "alt", "title", "align", "colspan", "rowspan", "start",
	"type", "checked", "disabled",
)

// Dropped together with everything inside them.
var opaqueTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
	atom.Embed: true, atom.Noscript: true, atom.Template: true, atom.Textarea: true,
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Sanitize filters rendered HTML down to an allow-list of HTML and MathML
// elements. Unknown elements are unwrapped, scripts and similar elements are
// removed with their content, event handlers and script URLs are dropped.
// Text is re-escaped on the way out.
func Sanitize(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0 // depth inside an opaque element
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if opaqueTags[tok.DataAtom] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 || !allowedTag(tok.Data) {
				continue
			}
			writeTag(&b, tok, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			if opaqueTags[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 || !allowedTag(tok.Data) {
				continue
			}
			b.WriteString("</" + tok.Data + ">")
		case html.TextToken:
			if skip == 0 {
				b.WriteString(html.EscapeString(tok.Data))
			}
		}
	}
}

func allowedTag(name string) bool {
	return htmlTags[name] || mathTags[name]
}

func writeTag(b *strings.Builder, tok html.Token, selfClosing bool) {
	isMath := mathTags[tok.Data]
	b.WriteString("<" + tok.Data)
	for _, a := range tok.Attr {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || strings.HasPrefix(key, "on") || key == "style" {
			continue
		}
		switch {
		case key == "href" || key == "src":
			if isMath || !safeURL(a.Val) {
				continue
			}
		case tok.Data == "input" && key == "type":
			if a.Val != "checkbox" {
				continue
			}
		case !isMath && !htmlAttrs[key]:
			continue
		}
		b.WriteString(" " + key + `="` + html.EscapeString(a.Val) + `"`)
	}
	if selfClosing {
		b.WriteString(" />")
		return
	}
	b.WriteString(">")
}

// safeURL accepts relative references and http, https and mailto URLs.
func safeURL(raw string) bool {
	v := strings.ToLower(strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, raw))
	colon := strings.IndexByte(v, ':')
	if colon < 0 {
		return true
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 && i < colon {
		return true
	}
	switch v[:colon] {
	case "http", "https", "mailto":
		return true
	}
	return false
}
