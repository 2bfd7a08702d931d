package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// RunResult is the outcome of running every batch group of a workflow.
type RunResult struct {
	WorkflowID string                    `json:"workflowId"`
	Status     models.WorkflowStatus     `json:"status"`
	Batches    []*BatchExecutionResult   `json:"batches"`
	Results    []*models.ExecutionResult `json:"results"`
	State      *models.ExecutionState    `json:"state"`
}

// Runner executes batch groups one after another and applies the
// workflow-level error handling policy between them.
type Runner struct {
	dispatcher *Dispatcher
	cfg        config.DispatchConfig
	logger     *zap.Logger

	beforeBatch func(*models.BatchGroup)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBeforeBatch registers fn to run on each group's runnable members
// right before the group is dispatched. Results of earlier groups are
// final by then, so fn may fold them into member prompts.
func WithBeforeBatch(fn func(*models.BatchGroup)) RunnerOption {
	return func(r *Runner) { r.beforeBatch = fn }
}

// NewRunner creates a runner over d.
func NewRunner(d *Dispatcher, cfg config.DispatchConfig, opts ...RunnerOption) *Runner {
	r := &Runner{dispatcher: d, cfg: cfg, logger: d.logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Halt stops the workflow: queued subtasks and later groups never start
// and no retries are attempted. In-flight calls are cancelled when
// CancelInFlightOnHalt is set and otherwise drain. It reports false if the
// workflow was already halted.
func (r *Runner) Halt(reason string) bool {
	t := r.dispatcher.tracker
	if !t.Halt(reason) {
		return false
	}
	r.dispatcher.emit(Event{Type: EventWorkflowHalted, Message: reason})
	if r.cfg.ErrorHandling.CancelInFlightOnHalt {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel()
		}
		r.mu.Unlock()
	}
	return true
}

// Run dispatches groups in order. Members whose BLOCKING dependencies
// failed, were skipped or were halted are skipped themselves.
func (r *Runner) Run(ctx context.Context, groups []*models.BatchGroup) *RunResult {
	t := r.dispatcher.tracker
	for _, g := range groups {
		t.Register(g.SubtaskIDs()...)
	}
	t.SetStatus(models.WorkflowRunning)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	out := &RunResult{WorkflowID: t.WorkflowID()}
	unusable := make(map[string]bool)
	sequential := false
	anyFailed := false

	for gi, group := range groups {
		if t.IsHalted() || ctx.Err() != nil {
			if !t.IsHalted() {
				r.Halt(fmt.Sprintf("context done: %v", ctx.Err()))
			}
			r.haltRemaining(groups[gi:])
			break
		}

		runnable := &models.BatchGroup{
			GroupID:                group.GroupID,
			Index:                  group.Index,
			EstimatedExecutionTime: group.EstimatedExecutionTime,
		}
		for _, m := range group.Members {
			if blocker := firstUnusable(m.Subtask, unusable); blocker != "" {
				r.skip(group, m.Subtask.ID, blocker)
				unusable[m.Subtask.ID] = true
				continue
			}
			runnable.Members = append(runnable.Members, m)
		}
		if len(runnable.Members) == 0 {
			continue
		}

		cfg := r.cfg
		if sequential {
			cfg.MaxConcurrentRequests = 1
			cfg.Concurrency.MaxConcurrentSubtasks = 1
		}
		if r.beforeBatch != nil {
			r.beforeBatch(runnable)
		}
		br := r.dispatcher.ExecuteBatch(runCtx, runnable, cfg)
		out.Batches = append(out.Batches, br)
		for _, res := range br.Results {
			out.Results = append(out.Results, res)
			if !res.Success {
				unusable[res.SubtaskID] = true
			}
		}
		if len(br.Errors) > 0 {
			anyFailed = true
		}

		// Any subtask that exhausted its retries is critical, whatever the
		// batch policy says about the group as a whole.
		if len(br.Errors) > 0 && r.cfg.ErrorHandling.HaltOnCriticalFailure {
			r.Halt(fmt.Sprintf("batch %d (%s) failed: subtask %s exhausted retries",
				group.Index, group.GroupID, br.Errors[0].SubtaskID))
			continue
		}
		if br.Success {
			continue
		}
		if r.cfg.ErrorHandling.FallbackToSequential && !sequential {
			sequential = true
			r.logger.Warn("dispatch: degrading to sequential execution",
				zap.String("group", group.GroupID),
			)
		}
	}

	switch {
	case t.IsHalted():
	case anyFailed:
		t.SetStatus(models.WorkflowFailed)
	default:
		t.SetStatus(models.WorkflowCompleted)
	}
	out.State = t.Snapshot()
	out.Status = out.State.Status
	return out
}

func firstUnusable(st *models.Subtask, unusable map[string]bool) string {
	for _, dep := range st.BlockingDependencies() {
		if unusable[dep] {
			return dep
		}
	}
	return ""
}

func (r *Runner) skip(group *models.BatchGroup, id, blocker string) {
	t := r.dispatcher.tracker
	if err := t.Transition(id, models.ExecStateSkipped); err != nil {
		r.logger.Warn("dispatch: cannot skip subtask", zap.String("subtask", id), zap.Error(err))
		return
	}
	r.logger.Info("dispatch: skipping subtask",
		zap.String("subtask", id),
		zap.String("blocked_by", blocker),
	)
	r.dispatcher.emit(Event{
		Type:       EventSubtaskSkipped,
		GroupID:    group.GroupID,
		GroupIndex: group.Index,
		SubtaskID:  id,
		Message:    fmt.Sprintf("dependency %s did not complete", blocker),
	})
}

func (r *Runner) haltRemaining(groups []*models.BatchGroup) {
	t := r.dispatcher.tracker
	for _, g := range groups {
		for _, m := range g.Members {
			if t.State(m.Subtask.ID) != "" {
				continue
			}
			if err := t.Transition(m.Subtask.ID, models.ExecStateHalted); err == nil {
				r.dispatcher.emit(Event{
					Type:       EventSubtaskHalted,
					GroupID:    g.GroupID,
					GroupIndex: g.Index,
					SubtaskID:  m.Subtask.ID,
				})
			}
		}
	}
}
