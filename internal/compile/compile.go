// Package compile drives an external LaTeX compiler to produce a PDF.
//
// Every compilation gets a private scratch workspace that is removed on all
// exit paths. The compiler runs a fixed number of passes, each with its own
// timeout; a non-zero exit or timeout aborts and the tail of the compiler log
// is returned for diagnosis.
package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dgallion1/texdesk/internal/docstore"
	"github.com/dgallion1/texdesk/internal/stats"
)

// ErrUnavailable means the compiler binary cannot be found.
var ErrUnavailable = errors.New("compile: compiler not available")

// Status tags the variant of an Outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusUnavailable
	StatusFailed
	StatusIOFailure
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnavailable:
		return "compiler_unavailable"
	case StatusFailed:
		return "compile_failed"
	case StatusIOFailure:
		return "io_failure"
	case StatusNotFound:
		return "not_found"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) jobState() JobState {
	switch s {
	case StatusSuccess:
		return StateSucceeded
	case StatusUnavailable:
		return StateUnavailable
	case StatusFailed:
		return StateFailed
	case StatusNotFound:
		return StateDocNotFound
	}
	return StateIOFailure
}

// Outcome is the result of one compilation. Which fields are set depends on
// Status: PDF and Pages for StatusSuccess, LogTail, FailedPass and TimedOut
// for StatusFailed, Err for StatusIOFailure.
type Outcome struct {
	Status     Status
	JobID      string
	PDF        []byte
	Pages      int
	LogTail    string
	FailedPass int
	TimedOut   bool
	Err        error
}

// Documents is the part of the Document Store the orchestrator reads.
type Documents interface {
	ReadWorkingCopy(id string) ([]byte, error)
}

// Options configures an Orchestrator. Zero values take the defaults used by
// the HTTP service.
type Options struct {
	Binary        string
	Passes        int
	PassTimeout   time.Duration
	LogTail       int
	MaxConcurrent int64
	ScratchDir    string // parent of workspaces; empty means os.TempDir()

	Runner   Runner                            // defaults to ExecRunner{Binary}
	LookPath func(file string) (string, error) // defaults to exec.LookPath
	Jobs     *JobStore
	Stats    *stats.Window // per-pass durations
	Logger   *slog.Logger
}

// Orchestrator runs compilations. Safe for concurrent use.
type Orchestrator struct {
	docs        Documents
	binary      string
	passes      int
	passTimeout time.Duration
	logTail     int
	scratchDir  string
	runner      Runner
	lookPath    func(string) (string, error)
	jobs        *JobStore
	stats       *stats.Window
	log         *slog.Logger
	sem         *semaphore.Weighted
}

func New(docs Documents, opts Options) *Orchestrator {
	if opts.Binary == "" {
		opts.Binary = "pdflatex"
	}
	if opts.Passes <= 0 {
		opts.Passes = 2
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 30 * time.Second
	}
	if opts.LogTail <= 0 {
		opts.LogTail = 1000
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{Binary: opts.Binary}
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Jobs == nil {
		opts.Jobs = NewJobStore(time.Hour)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		docs:        docs,
		binary:      opts.Binary,
		passes:      opts.Passes,
		passTimeout: opts.PassTimeout,
		logTail:     opts.LogTail,
		scratchDir:  opts.ScratchDir,
		runner:      opts.Runner,
		lookPath:    opts.LookPath,
		jobs:        opts.Jobs,
		stats:       opts.Stats,
		log:         opts.Logger,
		sem:         semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// Jobs returns the job registry.
func (o *Orchestrator) Jobs() *JobStore { return o.jobs }

// Available reports whether the compiler binary can be found.
func (o *Orchestrator) Available() bool {
	_, err := o.lookPath(o.binary)
	return err == nil
}

// Compile produces a PDF from the document's working copy.
func (o *Orchestrator) Compile(ctx context.Context, docID string) (out Outcome) {
	job := newJob(docID)
	o.jobs.Put(job)
	log := o.log.With("doc_id", docID, "job_id", job.ID)
	start := time.Now()
	defer func() {
		out.JobID = job.ID
		job.Finish(out)
		log.Info("compile finished", "outcome", out.Status.String(), "duration_ms", time.Since(start).Milliseconds())
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Status: StatusIOFailure, Err: fmt.Errorf("wait for compile slot: %w", err)}
	}
	defer o.sem.Release(1)

	job.SetState(StateProbing)
	if _, err := o.lookPath(o.binary); err != nil {
		log.Warn("compiler not found", "binary", o.binary, "error", err)
		return Outcome{Status: StatusUnavailable, Err: fmt.Errorf("%w: %s", ErrUnavailable, o.binary)}
	}

	source, err := o.docs.ReadWorkingCopy(docID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Outcome{Status: StatusNotFound, Err: err}
	}
	if err != nil {
		return o.ioFailure(log, "read working copy", err)
	}

	job.SetState(StateWorkspace)
	return o.inWorkspace(ctx, log, job, source)
}

// inWorkspace owns the scratch directory. The removal is deferred right
// after creation and the recover is deferred before it, so a panic in a pass
// still deletes the workspace and becomes an IOFailure.
func (o *Orchestrator) inWorkspace(ctx context.Context, log *slog.Logger, job *Job, source []byte) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = o.ioFailure(log, "compile panicked", fmt.Errorf("%v", p))
		}
	}()

	dir, err := os.MkdirTemp(o.scratchDir, "texdesk-*")
	if err != nil {
		return o.ioFailure(log, "create workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Error("remove workspace", "dir", dir, "error", err)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, DocumentName), source, 0o600); err != nil {
		return o.ioFailure(log, "write document", err)
	}

	for pass := 1; pass <= o.passes; pass++ {
		job.SetState(passState(pass))
		res, err := o.runner.RunPass(ctx, dir, o.passTimeout)
		if err != nil {
			return o.ioFailure(log, fmt.Sprintf("pass %d", pass), err)
		}
		job.AddPass(pass, res)
		o.stats.RecordOutcome(res.Duration.Milliseconds(), res.outcome())
		log.Debug("compile pass", "pass", pass, "exit_code", res.ExitCode, "timed_out", res.TimedOut,
			"duration_ms", res.Duration.Milliseconds())

		if res.Failed() {
			return Outcome{
				Status:     StatusFailed,
				LogTail:    o.failureLog(dir, res),
				FailedPass: pass,
				TimedOut:   res.TimedOut,
			}
		}
	}

	pdfPath := filepath.Join(dir, strings.TrimSuffix(DocumentName, ".tex")+".pdf")
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return o.ioFailure(log, "read pdf", err)
	}
	pages, err := PageCount(data)
	if err != nil {
		log.Debug("inspect pdf", "error", err)
	}
	return Outcome{Status: StatusSuccess, PDF: data, Pages: pages}
}

// failureLog prefers the compiler's log file and falls back to its output.
func (o *Orchestrator) failureLog(dir string, res PassResult) string {
	logPath := filepath.Join(dir, strings.TrimSuffix(DocumentName, ".tex")+".log")
	if tail := ReadLogTail(logPath, o.logTail); tail != "" {
		return tail
	}
	if tail := TailString(res.Stdout, o.logTail); strings.TrimSpace(tail) != "" {
		return tail
	}
	if res.TimedOut {
		return TailString(fmt.Sprintf("compiler pass timed out after %s", o.passTimeout), o.logTail)
	}
	return TailString(res.Stderr, o.logTail)
}

func (r PassResult) outcome() string {
	switch {
	case r.TimedOut:
		return stats.OutcomeTimeout
	case r.ExitCode != 0:
		return stats.OutcomeFailed
	}
	return stats.OutcomeOK
}

func (o *Orchestrator) ioFailure(log *slog.Logger, what string, err error) Outcome {
	err = fmt.Errorf("%s: %w", what, err)
	log.Error("compile io failure", "error", err)
	return Outcome{Status: StatusIOFailure, Err: err}
}
