package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/stats"
)

const testDoc = "doc-1"

type fakeDocs struct {
	mu    sync.Mutex
	files map[string][]byte
	reads int
}

func (d *fakeDocs) ReadWorkingCopy(id string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	data, ok := d.files[id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return data, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	fn    func(pass int, dir string) (PassResult, error)
}

func (f *fakeRunner) RunPass(_ context.Context, dir string, _ time.Duration) (PassResult, error) {
	f.mu.Lock()
	f.calls++
	pass := f.calls
	f.mu.Unlock()
	return f.fn(pass, dir)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func foundBinary(string) (string, error) { return "/usr/bin/pdflatex", nil }

func newTestOrchestrator(t *testing.T, runner Runner) (*Orchestrator, *fakeDocs, string) {
	t.Helper()
	scratch := t.TempDir()
	docs := &fakeDocs{files: map[string][]byte{testDoc: []byte(`\documentclass{article}\begin{document}Hi\end{document}`)}}
	o := New(docs, Options{
		ScratchDir: scratch,
		Runner:     runner,
		LookPath:   foundBinary,
		LogTail:    1000,
	})
	return o, docs, scratch
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no workspace left behind, found %d entries", len(entries))
	}
}

// minimalPDF builds a small but well-formed PDF with the given page count.
func minimalPDF(pages int) []byte {
	var b bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	b.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	var kids []string
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i))
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

func TestCompile_UnavailableShortCircuits(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) {
		t.Fatal("runner must not be called")
		return PassResult{}, nil
	}}
	o, docs, scratch := newTestOrchestrator(t, runner)
	o.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusUnavailable {
		t.Fatalf("expected unavailable, got %v", out.Status)
	}
	if !errors.Is(out.Err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", out.Err)
	}
	if docs.reads != 0 {
		t.Errorf("expected no document reads before the probe, got %d", docs.reads)
	}
	assertScratchEmpty(t, scratch)
	if o.Available() {
		t.Error("expected Available to be false")
	}
}

func TestCompile_SuccessRunsBothPasses(t *testing.T) {
	pdfData := minimalPDF(3)
	var sawSource string
	runner := &fakeRunner{fn: func(pass int, dir string) (PassResult, error) {
		if pass == 1 {
			data, _ := os.ReadFile(filepath.Join(dir, DocumentName))
			sawSource = string(data)
			// Warnings but a zero exit must not stop the second pass.
			return PassResult{ExitCode: 0, Stdout: "LaTeX Warning: Reference undefined"}, nil
		}
		if err := os.WriteFile(filepath.Join(dir, "document.pdf"), pdfData, 0o600); err != nil {
			return PassResult{}, err
		}
		return PassResult{ExitCode: 0, Duration: 5 * time.Millisecond}, nil
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	w := stats.NewWindow(time.Hour)
	o.stats = w

	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Status, out.Err)
	}
	if !bytes.Equal(out.PDF, pdfData) {
		t.Error("pdf bytes differ from what the compiler wrote")
	}
	if out.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", out.Pages)
	}
	if runner.count() != 2 {
		t.Errorf("expected 2 passes, got %d", runner.count())
	}
	if !strings.Contains(sawSource, `\begin{document}Hi`) {
		t.Errorf("working copy not materialized, saw %q", sawSource)
	}
	if snap := w.Snapshot(); snap.Count != 2 || snap.Outcomes[stats.OutcomeOK] != 2 {
		t.Errorf("expected 2 successful pass samples, got %+v", snap)
	}
	assertScratchEmpty(t, scratch)

	job := o.Jobs().Get(out.JobID)
	if job == nil {
		t.Fatal("job not registered")
	}
	snap := job.Snapshot()
	if snap.State != StateSucceeded || len(snap.Passes) != 2 || snap.Pages != 3 || snap.PDFBytes != len(pdfData) {
		t.Errorf("unexpected job snapshot %+v", snap)
	}
}

func TestCompile_FailureReturnsBoundedLogTail(t *testing.T) {
	runner := &fakeRunner{fn: func(pass int, dir string) (PassResult, error) {
		log := strings.Repeat("x", 5000) + "! Missing $ inserted.END"
		if err := os.WriteFile(filepath.Join(dir, "document.log"), []byte(log), 0o600); err != nil {
			return PassResult{}, err
		}
		return PassResult{ExitCode: 1}, nil
	}}
	o, _, scratch := newTestOrchestrator(t, runner)

	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %v", out.Status)
	}
	if out.FailedPass != 1 || runner.count() != 1 {
		t.Errorf("expected abort after pass 1, failed pass %d, calls %d", out.FailedPass, runner.count())
	}
	if n := len([]rune(out.LogTail)); n != 1000 {
		t.Errorf("expected log tail of exactly 1000 characters, got %d", n)
	}
	if !strings.HasSuffix(out.LogTail, "! Missing $ inserted.END") {
		t.Errorf("expected tail of the log, got ...%q", out.LogTail[len(out.LogTail)-30:])
	}
	assertScratchEmpty(t, scratch)
	if snap := o.Jobs().Get(out.JobID).Snapshot(); snap.State != StateFailed || snap.LogTail != out.LogTail {
		t.Errorf("unexpected job snapshot %+v", snap)
	}
}

func TestCompile_SecondPassFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(pass int, dir string) (PassResult, error) {
		if pass == 2 {
			return PassResult{ExitCode: 1, Stdout: "! Undefined control sequence."}, nil
		}
		return PassResult{}, nil
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusFailed || out.FailedPass != 2 {
		t.Fatalf("expected failure in pass 2, got %v pass %d", out.Status, out.FailedPass)
	}
	if out.LogTail != "! Undefined control sequence." {
		t.Errorf("expected stdout fallback when no log exists, got %q", out.LogTail)
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_TimeoutIsFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) {
		return PassResult{ExitCode: -1, TimedOut: true}, nil
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	w := stats.NewWindow(time.Hour)
	o.stats = w
	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusFailed || !out.TimedOut {
		t.Fatalf("expected timed-out failure, got %+v", out)
	}
	if snap := w.Snapshot(); snap.Count != 1 || snap.Outcomes[stats.OutcomeTimeout] != 1 {
		t.Errorf("expected one timed-out pass recorded, got %+v", snap)
	}
	if !strings.Contains(out.LogTail, "timed out") {
		t.Errorf("expected timeout note in details, got %q", out.LogTail)
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_PanicStillRemovesWorkspace(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) {
		panic("compiler exploded")
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	out := o.Compile(context.Background(), testDoc)
	if out.Status != StatusIOFailure {
		t.Fatalf("expected io failure, got %v", out.Status)
	}
	if out.Err == nil || !strings.Contains(out.Err.Error(), "compiler exploded") {
		t.Errorf("expected panic value in error, got %v", out.Err)
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_RunnerErrorIsIOFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) {
		return PassResult{}, errors.New("exec format error")
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	if out := o.Compile(context.Background(), testDoc); out.Status != StatusIOFailure {
		t.Errorf("expected io failure, got %v", out.Status)
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_MissingPDFIsIOFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) { return PassResult{}, nil }}
	o, _, scratch := newTestOrchestrator(t, runner)
	if out := o.Compile(context.Background(), testDoc); out.Status != StatusIOFailure {
		t.Errorf("expected io failure, got %v", out.Status)
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_NotFound(t *testing.T) {
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) { return PassResult{}, nil }}
	o, _, scratch := newTestOrchestrator(t, runner)
	out := o.Compile(context.Background(), "missing")
	if out.Status != StatusNotFound || !errors.Is(out.Err, docstore.ErrNotFound) {
		t.Errorf("expected not found, got %v (%v)", out.Status, out.Err)
	}
	if runner.count() != 0 {
		t.Error("runner called for a missing document")
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_UniqueWorkspaces(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	runner := &fakeRunner{fn: func(pass int, dir string) (PassResult, error) {
		mu.Lock()
		seen[dir] = true
		mu.Unlock()
		return PassResult{ExitCode: 1}, nil
	}}
	o, _, scratch := newTestOrchestrator(t, runner)
	for range 3 {
		o.Compile(context.Background(), testDoc)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct workspaces, got %d", len(seen))
	}
	assertScratchEmpty(t, scratch)
}

func TestCompile_CanceledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{fn: func(int, string) (PassResult, error) {
		close(started)
		<-release
		return PassResult{ExitCode: 1}, nil
	}}
	scratch := t.TempDir()
	docs := &fakeDocs{files: map[string][]byte{testDoc: []byte("x")}}
	o := New(docs, Options{ScratchDir: scratch, Runner: runner, LookPath: foundBinary, MaxConcurrent: 1, Passes: 1})

	done := make(chan Outcome)
	go func() { done <- o.Compile(context.Background(), testDoc) }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if out := o.Compile(ctx, testDoc); out.Status != StatusIOFailure {
		t.Errorf("expected io failure for canceled wait, got %v", out.Status)
	}
	close(release)
	if out := <-done; out.Status != StatusFailed {
		t.Errorf("expected first compile to fail normally, got %v", out.Status)
	}
	assertScratchEmpty(t, scratch)
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(minimalPDF(2))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 pages, got %d", n)
	}
	if _, err := PageCount([]byte("not a pdf at all")); err == nil {
		t.Error("expected error for garbage input")
	}
}
