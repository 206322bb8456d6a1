package compile

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the stage a compilation job is in.
type JobState string

const (
	StateQueued      JobState = "queued"
	StateProbing     JobState = "checking_compiler"
	StateWorkspace   JobState = "materializing_workspace"
	StatePass1       JobState = "pass_1"
	StatePass2       JobState = "pass_2"
	StateRunning     JobState = "running"
	StateSucceeded   JobState = "succeeded"
	StateFailed      JobState = "failed"
	StateUnavailable JobState = "compiler_unavailable"
	StateIOFailure   JobState = "io_failure"
	StateDocNotFound JobState = "not_found"
)

// passState names the state for a 1-based pass number.
func passState(pass int) JobState {
	switch pass {
	case 1:
		return StatePass1
	case 2:
		return StatePass2
	}
	return StateRunning
}

// PassRecord summarizes one finished pass.
type PassRecord struct {
	Pass       int   `json:"pass"`
	ExitCode   int   `json:"exit_code"`
	TimedOut   bool  `json:"timed_out"`
	DurationMs int64 `json:"duration_ms"`
}

// Job tracks one export request.
type Job struct {
	mu sync.Mutex

	ID    string
	DocID string

	state     JobState
	passes    []PassRecord
	logTail   string
	pages     int
	pdfBytes  int
	createdAt time.Time
	updatedAt time.Time
}

func newJob(docID string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		state:     StateQueued,
		createdAt: now,
		updatedAt: now,
	}
}

// SetState updates the job state.
func (j *Job) SetState(s JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
	j.updatedAt = time.Now()
}

// AddPass records a finished pass.
func (j *Job) AddPass(pass int, res PassResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.passes = append(j.passes, PassRecord{
		Pass:       pass,
		ExitCode:   res.ExitCode,
		TimedOut:   res.TimedOut,
		DurationMs: res.Duration.Milliseconds(),
	})
	j.updatedAt = time.Now()
}

// Finish stores the terminal outcome.
func (j *Job) Finish(out Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = out.Status.jobState()
	j.logTail = out.LogTail
	j.pages = out.Pages
	j.pdfBytes = len(out.PDF)
	j.updatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string       `json:"job_id"`
	DocID     string       `json:"doc_id"`
	State     JobState     `json:"state"`
	Passes    []PassRecord `json:"passes"`
	LogTail   string       `json:"log_tail,omitempty"`
	Pages     int          `json:"pages,omitempty"`
	PDFBytes  int          `json:"pdf_bytes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	passes := make([]PassRecord, len(j.passes))
	copy(passes, j.passes)
	return JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		State:     j.state,
		Passes:    passes,
		LogTail:   j.logTail,
		Pages:     j.pages,
		PDFBytes:  j.pdfBytes,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

func (j *Job) lastUpdate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns snapshots of the jobs for one document, newest first.
func (s *JobStore) List(docID string) []JobSnapshot {
	s.mu.Lock()
	var jobs []*Job
	for _, j := range s.jobs {
		if j.DocID == docID {
			jobs = append(jobs, j)
		}
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// Cleanup removes expired jobs and returns how many were dropped.
func (s *JobStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, job := range s.jobs {
		if now.Sub(job.lastUpdate()) > s.ttl {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
