package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
	"github.com/Gourav1632/into-the-repo/internal/history"
	"github.com/Gourav1632/into-the-repo/internal/logging"
)

// Runner executes one analysis. *analysis.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*analysis.Result, error)
}

// Options sizes the worker pool.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Orchestrator runs submitted tasks on a fixed worker pool with a bounded
// queue. Each task is owned by exactly one worker from pickup to terminal
// state.
type Orchestrator struct {
	runner   Runner
	recorder history.Recorder
	logger   *logging.Logger
	opts     Options

	queue   chan *Task
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
}

func NewOrchestrator(runner Runner, recorder history.Recorder, logger *logging.Logger, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		runner:   runner,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		queue:    make(chan *Task, opts.QueueSize),
		baseCtx:  ctx,
		stop:     cancel,
		tasks:    make(map[string]*Task),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.Info("Task orchestrator started", map[string]interface{}{
		"workers":   o.opts.Workers,
		"queueSize": o.opts.QueueSize,
	})
}

// Submit registers a new task and queues it for execution. It never blocks:
// a full queue rejects the submission. Callers may pin their own request id
// for progress-stream correlation; an empty id gets a generated one.
func (o *Orchestrator) Submit(requestID string, req analysis.Request, userID string) (*Task, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	task := newTask(requestID, userID, req)

	o.mu.Lock()
	if _, exists := o.tasks[requestID]; exists {
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.InvalidRequest,
			fmt.Sprintf("request id %s is already in use", requestID))
	}
	o.tasks[task.RequestID] = task
	o.mu.Unlock()

	select {
	case o.queue <- task:
	default:
		o.mu.Lock()
		delete(o.tasks, task.RequestID)
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.Internal, "task queue is full")
	}

	o.logger.Info("Task submitted", map[string]interface{}{
		"requestId": task.RequestID,
		"repo":      req.RepoURL,
		"branch":    req.Branch,
	})
	return task, nil
}

// Get returns a registered task by request id.
func (o *Orchestrator) Get(requestID string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[requestID]
	return task, ok
}

// Statuses snapshots all registered tasks, newest first.
func (o *Orchestrator) Statuses() []Status {
	o.mu.Lock()
	list := make([]*Task, 0, len(o.tasks))
	for _, t := range o.tasks {
		list = append(list, t)
	}
	o.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, t := range list {
		out = append(out, t.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel requests cancellation of a task. Pending tasks fail before they
// start; running tasks are interrupted at their next blocking step.
// Cancelling a terminal task is a no-op.
func (o *Orchestrator) Cancel(requestID string) error {
	o.mu.Lock()
	task, ok := o.tasks[requestID]
	cancel := o.cancels[requestID]
	o.mu.Unlock()

	if !ok {
		return apperrors.New(apperrors.TaskNotFound, fmt.Sprintf("no task with request id %s", requestID))
	}
	if task.State().Terminal() {
		return nil
	}

	task.requestCancel()
	if cancel != nil {
		cancel()
	}
	o.logger.Info("Task cancellation requested", map[string]interface{}{
		"requestId": requestID,
	})
	return nil
}

// Shutdown stops accepting work and waits for in-flight tasks, up to ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case task := <-o.queue:
			o.runTask(task)
		}
	}
}

func (o *Orchestrator) runTask(task *Task) {
	// Cancelled while still queued: fail without starting.
	if task.cancelled() {
		task.fail(apperrors.Cancelled, "cancelled before start")
		o.finish(task)
		return
	}

	ctx := o.baseCtx
	cancel := context.CancelFunc(func() {})
	if o.opts.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.TaskTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	o.mu.Lock()
	o.cancels[task.RequestID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, task.RequestID)
		o.mu.Unlock()
		cancel()
	}()

	task.markInProgress()
	result, err := o.runner.Run(ctx, task.Request, task.Progress().Append)

	if err != nil {
		code, message := causeOf(task, err)
		task.fail(code, message)
	} else {
		task.complete(result)
	}
	o.finish(task)
}

// finish closes the progress stream and hands the terminal outcome to the
// history recorder.
func (o *Orchestrator) finish(task *Task) {
	task.Progress().Close()

	status := task.Status()
	fields := map[string]interface{}{
		"requestId": task.RequestID,
		"state":     string(status.State),
	}
	if status.Error != nil {
		fields["code"] = string(status.Error.Code)
		fields["error"] = status.Error.Message
	}
	o.logger.Info("Task finished", fields)

	if o.recorder == nil {
		return
	}
	entry := history.Entry{
		RequestID:   task.RequestID,
		UserID:      task.UserID,
		Repo:        task.Request.RepoURL,
		Branch:      task.Request.Branch,
		Commit:      status.Commit,
		State:       string(status.State),
		CreatedAt:   status.CreatedAt,
		CompletedAt: time.Now().UTC(),
	}
	if status.Error != nil {
		entry.ErrorCode = string(status.Error.Code)
	}
	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.recorder.Record(recordCtx, entry); err != nil {
		o.logger.Error("Recording task outcome failed", map[string]interface{}{
			"requestId": task.RequestID,
			"error":     err.Error(),
		})
	}
}

// causeOf maps a pipeline failure to its structured cause. Context errors
// distinguish deadline expiry from explicit cancellation.
func causeOf(task *Task, err error) (apperrors.ErrorCode, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) && !task.cancelled():
		return apperrors.Timeout, "task deadline exceeded"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return apperrors.Cancelled, "task cancelled"
	}
	var ae *apperrors.AnalysisError
	if errors.As(err, &ae) {
		return ae.Code, ae.Message
	}
	return apperrors.Internal, err.Error()
}
