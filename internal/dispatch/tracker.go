package dispatch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ExecutionTracker owns the dispatch state of one workflow. All mutation
// goes through its methods; observers read copies via Snapshot.
type ExecutionTracker struct {
	mu         sync.RWMutex
	workflowID string
	status     models.WorkflowStatus
	order      []string
	states     map[string]models.SubtaskExecState
	retries    map[string]int
	errors     []models.ExecutionError
	haltReason string
	startedAt  time.Time
	updatedAt  time.Time

	now    func() time.Time
	logger *zap.Logger
}

// TrackerOption configures an ExecutionTracker.
type TrackerOption func(*ExecutionTracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *zap.Logger) TrackerOption {
	return func(t *ExecutionTracker) { t.logger = logging.OrNop(l) }
}

// WithTrackerClock overrides the time source.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *ExecutionTracker) { t.now = now }
}

// NewExecutionTracker creates a pending tracker for workflowID.
func NewExecutionTracker(workflowID string, opts ...TrackerOption) *ExecutionTracker {
	t := &ExecutionTracker{
		workflowID: workflowID,
		status:     models.WorkflowPending,
		states:     make(map[string]models.SubtaskExecState),
		retries:    make(map[string]int),
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startedAt = t.now()
	t.updatedAt = t.startedAt
	return t
}

// WorkflowID returns the tracked workflow.
func (t *ExecutionTracker) WorkflowID() string { return t.workflowID }

// Register adds subtasks that have not been seen yet.
func (t *ExecutionTracker) Register(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if _, ok := t.states[id]; ok {
			continue
		}
		t.states[id] = ""
		t.order = append(t.order, id)
	}
	t.updatedAt = t.now()
}

// Transition moves a subtask to next, rejecting illegal changes.
func (t *ExecutionTracker) Transition(id string, next models.SubtaskExecState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.states[id]
	if !ok {
		t.states[id] = ""
		t.order = append(t.order, id)
	}
	if !cur.CanTransition(next) {
		return fmt.Errorf("%w: subtask %s %q -> %q", ErrIllegalTransition, id, cur, next)
	}
	t.states[id] = next
	t.updatedAt = t.now()
	return nil
}

// State returns the current state of a subtask.
func (t *ExecutionTracker) State(id string) models.SubtaskExecState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[id]
}

// IncrementRetry bumps and returns a subtask's retry count.
func (t *ExecutionTracker) IncrementRetry(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retries[id]++
	t.updatedAt = t.now()
	return t.retries[id]
}

// RecordError appends a failure or recovery record.
func (t *ExecutionTracker) RecordError(e models.ExecutionError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, e)
	t.updatedAt = t.now()
}

// SetStatus sets the workflow status. A halted workflow stays halted.
func (t *ExecutionTracker) SetStatus(s models.WorkflowStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == models.WorkflowHalted {
		return
	}
	t.status = s
	t.updatedAt = t.now()
}

// Status returns the workflow status.
func (t *ExecutionTracker) Status() models.WorkflowStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Halt marks the workflow halted. It reports false if it already was.
func (t *ExecutionTracker) Halt(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == models.WorkflowHalted {
		return false
	}
	t.status = models.WorkflowHalted
	t.haltReason = reason
	t.updatedAt = t.now()
	t.logger.Warn("dispatch: workflow halted",
		zap.String("workflow", t.workflowID),
		zap.String("reason", reason),
	)
	return true
}

// IsHalted reports whether the workflow has been halted.
func (t *ExecutionTracker) IsHalted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status == models.WorkflowHalted
}

// Snapshot returns an independent copy of the execution state.
func (t *ExecutionTracker) Snapshot() *models.ExecutionState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := &models.ExecutionState{
		WorkflowID:    t.workflowID,
		Status:        t.status,
		Running:       []string{},
		Completed:     []string{},
		Failed:        []string{},
		Halted:        []string{},
		Queued:        []string{},
		SubtaskStates: make(map[string]models.SubtaskExecState, len(t.states)),
		RetryCounts:   make(map[string]int, len(t.retries)),
		Errors:        append([]models.ExecutionError(nil), t.errors...),
		HaltReason:    t.haltReason,
		StartedAt:     t.startedAt,
		UpdatedAt:     t.updatedAt,
	}
	for id, n := range t.retries {
		s.RetryCounts[id] = n
	}

	s.Progress.Total = len(t.order)
	for _, id := range t.order {
		st := t.states[id]
		s.SubtaskStates[id] = st
		switch st {
		case models.ExecStateRunning, models.ExecStateRetrying:
			s.Running = append(s.Running, id)
			s.Progress.InProgress++
		case models.ExecStateCompleted:
			s.Completed = append(s.Completed, id)
			s.Progress.Completed++
		case models.ExecStateFailed:
			s.Failed = append(s.Failed, id)
			s.Progress.Failed++
		case models.ExecStateHalted:
			s.Halted = append(s.Halted, id)
			s.Progress.Halted++
		case models.ExecStateSkipped:
			s.Skipped = append(s.Skipped, id)
			s.Progress.Skipped++
		case models.ExecStateQueued:
			s.Queued = append(s.Queued, id)
			s.Progress.Queued++
		}
	}
	return s
}
