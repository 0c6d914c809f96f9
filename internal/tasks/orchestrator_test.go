package tasks

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
	"github.com/Gourav1632/into-the-repo/internal/history"
	"github.com/Gourav1632/into-the-repo/internal/logging"
)

type fakeRunner struct {
	result *analysis.Result
	err    error
	emit   []string
	block  chan struct{} // when set, Run waits for it or for ctx
}

func (r *fakeRunner) Run(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*analysis.Result, error) {
	for _, msg := range r.emit {
		progress(msg)
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, entry history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRecorder) last() (history.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return history.Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

func newOrchestrator(t *testing.T, runner Runner, recorder history.Recorder, opts Options) *Orchestrator {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Output: io.Discard})
	o := NewOrchestrator(runner, recorder, logger, opts)
	o.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func waitTerminal(t *testing.T, task *Task) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := task.State(); s.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state (state=%s)", task.RequestID, task.State())
	return ""
}

func TestOrchestratorCompletesTask(t *testing.T) {
	runner := &fakeRunner{
		result: &analysis.Result{Commit: "commit-1"},
		emit:   []string{"Cloning repository...", "Analysis complete"},
	}
	recorder := &fakeRecorder{}
	o := newOrchestrator(t, runner, recorder, Options{Workers: 2, QueueSize: 4})

	task, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/widgets", Branch: "main"}, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := waitTerminal(t, task); got != StateCompleted {
		t.Fatalf("state = %s, want completed", got)
	}
	if task.Result() == nil || task.Result().Commit != "commit-1" {
		t.Errorf("result = %+v", task.Result())
	}
	if !task.Progress().Closed() {
		t.Error("progress log should close on completion")
	}
	status := task.Status()
	if status.Commit != "commit-1" || status.Error != nil {
		t.Errorf("status = %+v", status)
	}

	entry, ok := recorder.last()
	if !ok {
		t.Fatal("no history entry recorded")
	}
	if entry.RequestID != task.RequestID || entry.State != string(StateCompleted) || entry.UserID != "user-1" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestOrchestratorFailureCarriesCause(t *testing.T) {
	runner := &fakeRunner{err: apperrors.New(apperrors.BranchNotFound, "branch missing")}
	o := newOrchestrator(t, runner, nil, Options{Workers: 1, QueueSize: 2})

	task, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/widgets", Branch: "gone"}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := waitTerminal(t, task); got != StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
	status := task.Status()
	if status.Error == nil || status.Error.Code != apperrors.BranchNotFound {
		t.Errorf("status error = %+v, want %s", status.Error, apperrors.BranchNotFound)
	}
}

func TestOrchestratorCancelRunningTask(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	defer close(runner.block)
	o := newOrchestrator(t, runner, nil, Options{Workers: 1, QueueSize: 2})

	task, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/widgets"}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Wait for the worker to pick it up, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for task.State() == StatePending && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := o.Cancel(task.RequestID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if got := waitTerminal(t, task); got != StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
	status := task.Status()
	if status.Error == nil || status.Error.Code != apperrors.Cancelled {
		t.Errorf("status error = %+v, want %s", status.Error, apperrors.Cancelled)
	}
}

func TestOrchestratorCancelQueuedTask(t *testing.T) {
	blocker := &fakeRunner{block: make(chan struct{})}
	o := newOrchestrator(t, blocker, nil, Options{Workers: 1, QueueSize: 4})

	first, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/first"}, "")
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	second, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/second"}, "")
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}

	if err := o.Cancel(second.RequestID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(blocker.block)

	waitTerminal(t, first)
	if got := waitTerminal(t, second); got != StateFailed {
		t.Fatalf("second state = %s, want failed", got)
	}
	if status := second.Status(); status.Error == nil || status.Error.Code != apperrors.Cancelled {
		t.Errorf("second error = %+v, want %s", second.Status().Error, apperrors.Cancelled)
	}
}

func TestOrchestratorTimeout(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	defer close(runner.block)
	o := newOrchestrator(t, runner, nil, Options{Workers: 1, QueueSize: 2, TaskTimeout: 30 * time.Millisecond})

	task, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/widgets"}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := waitTerminal(t, task); got != StateFailed {
		t.Fatalf("state = %s, want failed", got)
	}
	if status := task.Status(); status.Error == nil || status.Error.Code != apperrors.Timeout {
		t.Errorf("error = %+v, want %s", task.Status().Error, apperrors.Timeout)
	}
}

func TestOrchestratorQueueFull(t *testing.T) {
	blocker := &fakeRunner{block: make(chan struct{})}
	defer close(blocker.block)
	o := newOrchestrator(t, blocker, nil, Options{Workers: 1, QueueSize: 1})

	// First task occupies the worker, second fills the queue.
	if _, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/a"}, ""); err != nil {
		t.Fatalf("Submit #1: %v", err)
	}
	// Give the worker a moment to drain the queue slot.
	time.Sleep(20 * time.Millisecond)
	if _, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/b"}, ""); err != nil {
		t.Fatalf("Submit #2: %v", err)
	}

	_, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/c"}, "")
	if err == nil {
		t.Fatal("expected a queue-full error")
	}
}

func TestOrchestratorCancelUnknownTask(t *testing.T) {
	o := newOrchestrator(t, &fakeRunner{}, nil, Options{Workers: 1, QueueSize: 1})
	err := o.Cancel("no-such-id")
	if code := apperrors.CodeOf(err); code != apperrors.TaskNotFound {
		t.Errorf("error code = %s, want %s", code, apperrors.TaskNotFound)
	}
}

func TestOrchestratorDuplicateRequestID(t *testing.T) {
	blocker := &fakeRunner{block: make(chan struct{})}
	defer close(blocker.block)
	o := newOrchestrator(t, blocker, nil, Options{Workers: 1, QueueSize: 4})

	if _, err := o.Submit("pinned-id", analysis.Request{RepoURL: "https://github.com/acme/a"}, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err := o.Submit("pinned-id", analysis.Request{RepoURL: "https://github.com/acme/b"}, "")
	if code := apperrors.CodeOf(err); code != apperrors.InvalidRequest {
		t.Errorf("error code = %s, want %s", code, apperrors.InvalidRequest)
	}
}

func TestOrchestratorGet(t *testing.T) {
	o := newOrchestrator(t, &fakeRunner{result: &analysis.Result{}}, nil, Options{Workers: 1, QueueSize: 2})
	task, err := o.Submit("", analysis.Request{RepoURL: "https://github.com/acme/widgets"}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, ok := o.Get(task.RequestID)
	if !ok || got.RequestID != task.RequestID {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if _, ok := o.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}
}
