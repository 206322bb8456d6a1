// Package stats keeps rolling latency windows for slow operations, split by
// how each operation ended.
package stats

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// Outcome labels used by the service.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
)

// MaxSamples bounds a window regardless of its age limit.
const MaxSamples = 4096

// OutcomeOf labels an operation by the error it returned.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	}
	return OutcomeFailed
}

type sample struct {
	at      time.Time
	ms      int64
	outcome string
}

// Snapshot aggregates the samples currently in a window. Latency figures
// cover every outcome; Outcomes breaks the count down.
type Snapshot struct {
	Count    int            `json:"count"`
	MinMs    int64          `json:"min_ms"`
	MaxMs    int64          `json:"max_ms"`
	AvgMs    float64        `json:"avg_ms"`
	P50Ms    float64        `json:"p50_ms"`
	P95Ms    float64        `json:"p95_ms"`
	P99Ms    float64        `json:"p99_ms"`
	Outcomes map[string]int `json:"outcomes,omitempty"`
}

// Window holds samples younger than its age limit, oldest first.
// A nil *Window ignores records and reports an empty Snapshot.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{maxAge: maxAge}
}

// Record adds a successful sample.
func (w *Window) Record(ms int64) { w.RecordOutcome(ms, OutcomeOK) }

// Since records the time elapsed since start as a success.
func (w *Window) Since(start time.Time) { w.SinceOutcome(start, OutcomeOK) }

// SinceOutcome records the time elapsed since start under outcome.
func (w *Window) SinceOutcome(start time.Time, outcome string) {
	w.RecordOutcome(time.Since(start).Milliseconds(), outcome)
}

// RecordOutcome adds a sample. Negative durations count as zero and an empty
// outcome as OutcomeOK.
func (w *Window) RecordOutcome(ms int64, outcome string) {
	if w == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeOK
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(now)
	if len(w.samples) >= MaxSamples {
		w.samples = slices.Delete(w.samples, 0, len(w.samples)-MaxSamples+1)
	}
	w.samples = append(w.samples, sample{at: now, ms: max(ms, 0), outcome: outcome})
}

func (w *Window) Snapshot() Snapshot {
	if w == nil {
		return Snapshot{}
	}
	w.mu.Lock()
	w.expire(time.Now())
	values := make([]int64, len(w.samples))
	outcomes := make(map[string]int)
	var sum int64
	for i, s := range w.samples {
		values[i] = s.ms
		sum += s.ms
		outcomes[s.outcome]++
	}
	w.mu.Unlock()

	if len(values) == 0 {
		return Snapshot{}
	}
	slices.Sort(values)
	return Snapshot{
		Count:    len(values),
		MinMs:    values[0],
		MaxMs:    values[len(values)-1],
		AvgMs:    float64(sum) / float64(len(values)),
		P50Ms:    percentile(values, 50),
		P95Ms:    percentile(values, 95),
		P99Ms:    percentile(values, 99),
		Outcomes: outcomes,
	}
}

// expire drops samples older than the age limit. Samples are appended in
// time order, so the expired ones form a prefix.
func (w *Window) expire(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	n := sort.Search(len(w.samples), func(i int) bool { return !w.samples[i].at.Before(cutoff) })
	if n > 0 {
		w.samples = slices.Delete(w.samples, 0, n)
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(len(sorted)-1) * min(max(pct, 0), 100) / 100
	i := int(rank)
	if i+1 >= len(sorted) {
		return float64(sorted[len(sorted)-1])
	}
	frac := rank - float64(i)
	return float64(sorted[i]) + frac*float64(sorted[i+1]-sorted[i])
}
