// Package preview keeps a rendered view of a document up to date by polling
// its source and re-rendering only when the freshness marker changes.
package preview

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/texdesk/internal/render"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 2 * time.Second

// Source is one fetched revision of a document.
type Source struct {
	Text   string
	Marker string // changes whenever Text may have changed
}

// Fetcher reads the current revision of a document.
type Fetcher interface {
	Fetch(ctx context.Context) (Source, error)
}

// Renderer turns LaTeX into HTML. It must not fail; problems show up as a
// degraded result.
type Renderer interface {
	LaTeX(ctx context.Context, latex string) render.Result
}

// State is what a view shows. HTML always holds the last successful render,
// even while Err reports a failed fetch.
type State struct {
	HTML      string
	Marker    string
	Degraded  bool
	Err       error
	Renders   int
	UpdatedAt time.Time
}

// Options configures a Loop.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	// OnChange is called after every render and every fetch error, on the
	// goroutine that polled. Once Stop is called it is no longer invoked.
	OnChange func(State)
}

// Loop is a single-timer refresh loop for one view.
type Loop struct {
	fetcher  Fetcher
	renderer Renderer
	interval time.Duration
	log      *slog.Logger
	onChange func(State)

	inflight atomic.Bool
	stopped  atomic.Bool

	mu     sync.Mutex
	state  State
	marker string             // marker of the last render; empty forces a render
	cancel context.CancelFunc // set once by Start

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a stopped loop.
func New(f Fetcher, r Renderer, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		fetcher:  f,
		renderer: r,
		interval: opts.Interval,
		log:      opts.Logger,
		onChange: opts.OnChange,
		done:     make(chan struct{}),
	}
}

// Start fetches once immediately and then once per interval until ctx is
// done or Stop is called. Calling Start more than once, or after Stop, has no
// effect.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil || l.stopped.Load() {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	l.Poll(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Poll(ctx)
		}
	}
}

// Stop clears the timer and waits for an in-progress poll to finish.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped.Store(true)
		cancel := l.cancel
		l.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-l.done
	})
}

// Refresh forgets the last marker so the next fetch always re-renders, then
// polls. If a fetch is already running it is not repeated; the cleared marker
// makes the following tick render instead.
func (l *Loop) Refresh(ctx context.Context) bool {
	l.mu.Lock()
	l.marker = ""
	l.mu.Unlock()
	return l.Poll(ctx)
}

// State returns the current view state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Poll runs one fetch. It returns false without fetching when another fetch
// is in flight or the loop is stopped.
func (l *Loop) Poll(ctx context.Context) bool {
	if l.stopped.Load() || !l.inflight.CompareAndSwap(false, true) {
		return false
	}
	defer l.inflight.Store(false)

	src, err := l.fetcher.Fetch(ctx)
	if l.abandoned(ctx) {
		return true
	}
	if err != nil {
		l.log.Warn("preview fetch failed", "error", err)
		l.update(func(s *State) { s.Err = err })
		return true
	}

	l.mu.Lock()
	unchanged := l.marker != "" && src.Marker == l.marker
	recovered := l.state.Err != nil
	if unchanged {
		l.state.Err = nil
	}
	snapshot := l.state
	l.mu.Unlock()
	if unchanged {
		if recovered {
			l.notify(snapshot)
		}
		return true
	}

	res := l.renderer.LaTeX(ctx, src.Text)
	if l.abandoned(ctx) {
		// A render cut short by teardown is not a result. The marker is left
		// alone so a later poll renders this revision again.
		return true
	}
	l.update(func(s *State) {
		l.marker = src.Marker
		*s = State{
			HTML:      res.HTML,
			Marker:    src.Marker,
			Degraded:  res.Degraded,
			Renders:   s.Renders + 1,
			UpdatedAt: time.Now(),
		}
	})
	return true
}

// abandoned reports whether the poll's outcome must be discarded.
func (l *Loop) abandoned(ctx context.Context) bool {
	return ctx.Err() != nil || l.stopped.Load()
}

func (l *Loop) update(fn func(s *State)) {
	l.mu.Lock()
	fn(&l.state)
	snapshot := l.state
	l.mu.Unlock()
	l.notify(snapshot)
}

func (l *Loop) notify(s State) {
	if l.onChange != nil && !l.stopped.Load() {
		l.onChange(s)
	}
}
