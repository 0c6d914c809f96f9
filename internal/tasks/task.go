// Package tasks owns asynchronous analysis execution: task lifecycle,
// ordered progress streaming, and the bounded worker pool that drives the
// pipeline.
package tasks

import (
	"sync"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
)

// State is a task lifecycle phase. Transitions only move forward:
// pending -> in_progress -> completed | failed.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task is one submitted analysis. Mutations go through the owning worker;
// readers get consistent snapshots via Status.
type Task struct {
	RequestID string
	UserID    string
	Request   analysis.Request

	mu              sync.Mutex
	state           State
	errCode         apperrors.ErrorCode
	errMessage      string
	result          *analysis.Result
	cancelRequested bool
	createdAt       time.Time
	startedAt       time.Time
	completedAt     time.Time

	progress *ProgressLog
}

func newTask(requestID, userID string, req analysis.Request) *Task {
	return &Task{
		RequestID: requestID,
		UserID:    userID,
		Request:   req,
		state:     StatePending,
		createdAt: time.Now().UTC(),
		progress:  NewProgressLog(),
	}
}

// Progress exposes the task's ordered event log.
func (t *Task) Progress() *ProgressLog { return t.progress }

// State returns the current lifecycle phase.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the analysis output, or nil before completion.
func (t *Task) Result() *analysis.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Status is a serializable point-in-time view of a task.
type Status struct {
	RequestID   string     `json:"requestId"`
	State       State      `json:"state"`
	Repo        string     `json:"repoUrl"`
	Branch      string     `json:"branch"`
	Commit      string     `json:"commit,omitempty"`
	Error       *TaskError `json:"error,omitempty"`
	Events      int        `json:"events"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TaskError is the structured failure cause carried by a failed task.
type TaskError struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// Status snapshots the task without blocking its worker.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		RequestID: t.RequestID,
		State:     t.state,
		Repo:      t.Request.RepoURL,
		Branch:    t.Request.Branch,
		Events:    t.progress.Len(),
		CreatedAt: t.createdAt,
	}
	if t.result != nil {
		s.Commit = t.result.Commit
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		s.CompletedAt = &completed
	}
	if t.state == StateFailed {
		s.Error = &TaskError{Code: t.errCode, Message: t.errMessage}
	}
	return s
}

func (t *Task) markInProgress() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateInProgress
	t.startedAt = time.Now().UTC()
}

// complete records a durably cached result. Terminal; the progress log is
// closed by the caller afterwards.
func (t *Task) complete(result *analysis.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateCompleted
	t.result = result
	t.completedAt = time.Now().UTC()
}

func (t *Task) fail(code apperrors.ErrorCode, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.state = StateFailed
	t.errCode = code
	t.errMessage = message
	t.completedAt = time.Now().UTC()
}

func (t *Task) requestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

func (t *Task) cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}
