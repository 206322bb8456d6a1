// Package render turns Markdown with math into sanitized HTML.
//
// Rendering never fails from the caller's point of view: any internal error,
// panic or timeout yields the raw input wrapped in a <pre> block and a
// Degraded result.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/dgallion1/texdesk/internal/rewrite"
	"github.com/dgallion1/texdesk/internal/stats"
)

// ErrRender wraps conversion failures.
var ErrRender = errors.New("render failed")

// DefaultTimeout bounds a single conversion.
const DefaultTimeout = 10 * time.Second

// Options configures a Renderer.
type Options struct {
	Macros  map[string]string
	Timeout time.Duration
	Logger  *slog.Logger
	Stats   *stats.Window // optional render latency window
}

// Result is the outcome of one render.
type Result struct {
	HTML     string `json:"html"`
	Degraded bool   `json:"degraded"`
}

// Renderer converts Markdown to HTML with MathML math. Safe for concurrent use.
type Renderer struct {
	md      goldmark.Markdown
	ts      *Typesetter
	timeout time.Duration
	log     *slog.Logger
	stats   *stats.Window
}

// New builds a Renderer with GFM tables, math and highlighted code blocks.
func New(opts Options) *Renderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	ts := NewTypesetter(opts.Macros)
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			mathExtension{ts: ts},
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			gmhtml.WithXHTML(),
			// Theorem containers and <center> arrive as raw HTML; Sanitize runs afterwards.
			gmhtml.WithUnsafe(),
		),
	)
	return &Renderer{md: md, ts: ts, timeout: opts.Timeout, log: opts.Logger, stats: opts.Stats}
}

// Typesetter returns the math typesetter used by r.
func (r *Renderer) Typesetter() *Typesetter { return r.ts }

// LaTeX rewrites a LaTeX document and renders the result. When rendering
// fails the fallback shows the original LaTeX, not the intermediate Markdown.
func (r *Renderer) LaTeX(ctx context.Context, latex string) Result {
	out, err := r.convert(ctx, func() string { return rewrite.Rewrite(latex) })
	if err != nil {
		r.log.Warn("render degraded", "error", err, "bytes", len(latex))
		return Result{HTML: Fallback(latex), Degraded: true}
	}
	return Result{HTML: out}
}

// Markdown renders Markdown directly.
func (r *Renderer) Markdown(ctx context.Context, src string) Result {
	out, err := r.convert(ctx, func() string { return src })
	if err != nil {
		r.log.Warn("render degraded", "error", err, "bytes", len(src))
		return Result{HTML: Fallback(src), Degraded: true}
	}
	return Result{HTML: out}
}

// Fallback wraps raw text in an escaped preformatted block.
func Fallback(raw string) string {
	return "<pre>" + html.EscapeString(raw) + "</pre>"
}

// convert runs prepare and goldmark off the caller's goroutine so the
// context and timeout can abandon it.
func (r *Renderer) convert(ctx context.Context, prepare func() string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: panic: %v", ErrRender, p)}
			}
		}()
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(prepare()), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrRender, err)}
			return
		}
		done <- result{html: Sanitize(buf.String())}
	}()

	select {
	case <-ctx.Done():
		r.stats.SinceOutcome(start, stats.OutcomeOf(ctx.Err()))
		return "", ctx.Err()
	case res := <-done:
		r.stats.SinceOutcome(start, stats.OutcomeOf(res.err))
		return res.html, res.err
	}
}
