package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the long-running background tasks that share the job store
type Kind string

const (
	KindRepair    Kind = "repair"
	KindDNCExport Kind = "dnc_export"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a job can no longer change state
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one background scan/repost/export run. Mutated only by the owning
// background task; once terminal it never changes again. There is no
// cancellation: operators observe progress, they do not abort.
type Job struct {
	ID           uuid.UUID `json:"id"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"` // 0-100
	ErrorMessage string    `json:"error_message,omitempty"`

	// Progress counters
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`

	// Estimated time remaining from a running average, human readable
	ETA string `json:"estimated_time_remaining,omitempty"`

	// Kind-specific counters (DNC export)
	ListsProcessed int `json:"total_lists_processed,omitempty"`
	LeadsFound     int `json:"total_leads_found,omitempty"`
	DNCMatches     int `json:"total_dnc_matches,omitempty"`

	Errors []string `json:"errors,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job
func New(kind Kind) *Job {
	return &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Start transitions pending -> running
func (j *Job) Start() error {
	if j.Status != StatusPending {
		return fmt.Errorf("cannot start job in state %s", j.Status)
	}
	j.Status = StatusRunning
	return nil
}

// Complete transitions running -> completed
func (j *Job) Complete() error {
	if j.Status != StatusRunning {
		return fmt.Errorf("cannot complete job in state %s", j.Status)
	}
	j.Status = StatusCompleted
	j.Progress = 100
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// Fail transitions to failed from any non-terminal state. The message is kept
// so status queries never hide the terminal failure behind a generic error.
func (j *Job) Fail(message string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("cannot fail job in state %s", j.Status)
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// RecordError appends a per-item failure without affecting job state
func (j *Job) RecordError(msg string) {
	j.Errors = append(j.Errors, msg)
}
