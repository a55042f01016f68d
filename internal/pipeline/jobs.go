package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusUnpacking  JobStatus = "unpacking"
	StatusExtracting JobStatus = "extracting"
	StatusStoring    JobStatus = "storing"
	StatusIndexing   JobStatus = "indexing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of one upload: a single label or an archive of them.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	labelIDs []string
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	DocumentsTotal     int      `json:"documents_total"`
	DocumentsProcessed int      `json:"documents_processed"`
	DocumentsStored    int      `json:"documents_stored"`
	DocumentsFailed    int      `json:"documents_failed"`
	DocumentsDuplicate int      `json:"documents_duplicate"`
	PassagesIndexed    int      `json:"passages_indexed"`
	Errors             []string `json:"errors"`
}

// NewJob creates a queued job holding data.
func NewJob(filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        newJobID(),
		Filename:  filename,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
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

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		idle := now.Sub(job.UpdatedAt)
		job.mu.Unlock()
		if idle > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotal records how many documents the upload holds.
func (j *Job) SetTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.DocumentsTotal = n
	j.UpdatedAt = time.Now()
}

// docOutcome is what happened to one document of a job.
type docOutcome int

const (
	outcomeFailed docOutcome = iota
	outcomeDuplicate
	outcomeExtracted
)

// recordOutcome counts one processed document.
func (j *Job) recordOutcome(o docOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.DocumentsProcessed++
	switch o {
	case outcomeFailed:
		j.Progress.DocumentsFailed++
	case outcomeDuplicate:
		j.Progress.DocumentsDuplicate++
	}
	j.UpdatedAt = time.Now()
}

// markStored counts a label written to the store.
func (j *Job) markStored(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.DocumentsStored++
	j.labelIDs = append(j.labelIDs, id)
	j.UpdatedAt = time.Now()
}

// markDuplicate moves an extracted document to the duplicate count.
func (j *Job) markDuplicate() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.DocumentsDuplicate++
	j.UpdatedAt = time.Now()
}

// markStoreFailed moves an extracted document to the failed count.
func (j *Job) markStoreFailed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.DocumentsFailed++
	j.UpdatedAt = time.Now()
}

// AddPassages records passages pushed to the index.
func (j *Job) AddPassages(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PassagesIndexed += n
	j.UpdatedAt = time.Now()
}

// FileData returns the raw upload bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseData drops the upload once it has been unpacked.
func (j *Job) releaseData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Filename  string    `json:"filename"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	LabelIDs  []string  `json:"label_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.Progress
	p.Errors = append([]string{}, j.errors...)
	return JobSnapshot{
		ID:        j.ID,
		Filename:  j.Filename,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		LabelIDs:  append([]string{}, j.labelIDs...),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
