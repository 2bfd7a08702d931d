package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/taskweave/internal/agent"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Agents is the view of the agent registry the dispatcher needs.
type Agents interface {
	agent.Invoker
	Default() string
	FallbackChain(primary string, names []string) []string
}

var _ Agents = (*agent.Registry)(nil)

// BatchExecutionResult is the outcome of one batch group.
type BatchExecutionResult struct {
	GroupID    string                    `json:"groupId"`
	GroupIndex int                       `json:"groupIndex"`
	Success    bool                      `json:"success"`
	Results    []*models.ExecutionResult `json:"results"`
	Errors     []*Error                  `json:"-"`
	Duration   time.Duration             `json:"duration"`
	// Halted lists members that never started because the workflow halted.
	Halted []string `json:"halted,omitempty"`
}

// Dispatcher runs the members of a batch group concurrently.
type Dispatcher struct {
	agents       Agents
	tracker      *ExecutionTracker
	listener     Listener
	systemPrompt string
	output       func(subtaskID, line string)
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNop(l) }
}

// WithListener sets the event listener.
func WithListener(fn Listener) Option {
	return func(d *Dispatcher) { d.listener = fn }
}

// WithSystemPrompt overrides the system prompt sent with every request.
func WithSystemPrompt(p string) Option {
	return func(d *Dispatcher) { d.systemPrompt = p }
}

// WithOutputSink streams agent output to fn one complete line at a time
// while each attempt runs.
func WithOutputSink(fn func(subtaskID, line string)) Option {
	return func(d *Dispatcher) { d.output = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher that records state in tracker.
func NewDispatcher(agents Agents, tracker *ExecutionTracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		agents:   agents,
		tracker:  tracker,
		listener: func(Event) {},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tracker returns the execution tracker.
func (d *Dispatcher) Tracker() *ExecutionTracker { return d.tracker }

func (d *Dispatcher) emit(ev Event) {
	ev.WorkflowID = d.tracker.WorkflowID()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}
	d.listener(ev)
}

// Concurrency returns the effective per-batch worker limit.
func Concurrency(cfg config.DispatchConfig) int {
	limit := cfg.MaxConcurrentRequests
	if c := cfg.Concurrency.MaxConcurrentSubtasks; c > 0 && (limit <= 0 || c < limit) {
		limit = c
	}
	return max(limit, 1)
}

// ExecuteBatch runs every member of group and waits for all of them to
// settle. Members start in priority order with at most Concurrency(cfg)
// running at once; one member's failure never cancels another.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, group *models.BatchGroup, cfg config.DispatchConfig) *BatchExecutionResult {
	start := d.now()
	res := &BatchExecutionResult{GroupID: group.GroupID, GroupIndex: group.Index}

	if bt := cfg.Timeout.BatchTimeout(); bt > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bt)
		defer cancel()
	}

	members := append([]*models.BatchMember(nil), group.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Subtask.Priority.Rank() < members[j].Subtask.Priority.Rank()
	})

	for _, m := range members {
		if err := d.tracker.Transition(m.Subtask.ID, models.ExecStateQueued); err != nil {
			d.logger.Warn("dispatch: cannot queue subtask", zap.String("subtask", m.Subtask.ID), zap.Error(err))
		}
	}

	d.emit(Event{Type: EventBatchStarted, GroupID: group.GroupID, GroupIndex: group.Index})
	d.logger.Info("dispatch: batch started",
		zap.String("group", group.GroupID),
		zap.Int("members", len(members)),
		zap.Int("concurrency", Concurrency(cfg)),
	)

	var (
		mu      sync.Mutex
		results = make([]*models.ExecutionResult, len(members))
	)
	var g errgroup.Group
	g.SetLimit(Concurrency(cfg))
	for i, m := range members {
		g.Go(func() error {
			r, derr, halted := d.executeMember(ctx, group, m, cfg)
			mu.Lock()
			results[i] = r
			if derr != nil {
				res.Errors = append(res.Errors, derr)
			}
			if halted {
				res.Halted = append(res.Halted, m.Subtask.ID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.Results = results
	res.Success = batchSucceeded(results, cfg.ErrorHandling.BatchFailurePolicy)
	res.Duration = d.now().Sub(start)
	sort.Strings(res.Halted)

	d.emit(Event{Type: EventBatchCompleted, GroupID: group.GroupID, GroupIndex: group.Index, Batch: res})
	d.logger.Info("dispatch: batch completed",
		zap.String("group", group.GroupID),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// batchSucceeded applies the batch failure policy.
func batchSucceeded(results []*models.ExecutionResult, policy string) bool {
	failed := 0
	for _, r := range results {
		if r == nil || !r.Success {
			failed++
		}
	}
	switch policy {
	case config.BatchPolicyAll:
		return len(results) == 0 || failed < len(results)
	case config.BatchPolicyMajority:
		return failed*2 <= len(results)
	default:
		return failed == 0
	}
}

// executeMember runs one subtask through its retries and fallbacks.
func (d *Dispatcher) executeMember(ctx context.Context, group *models.BatchGroup, m *models.BatchMember, cfg config.DispatchConfig) (*models.ExecutionResult, *Error, bool) {
	st := m.Subtask
	primary := d.agents.Default()
	if m.Injection != nil && m.Injection.AgentID != "" && m.Injection.AgentID != models.UnassignedAgent {
		primary = m.Injection.AgentID
	}
	result := &models.ExecutionResult{SubtaskID: st.ID, AgentID: primary, StartedAt: d.now()}
	base := Event{GroupID: group.GroupID, GroupIndex: group.Index, SubtaskID: st.ID}

	if d.tracker.IsHalted() {
		_ = d.tracker.Transition(st.ID, models.ExecStateHalted)
		result.Error = ErrHalted.Error()
		result.ErrorKind = models.ErrorKindSystem
		result.CompletedAt = d.now()
		ev := base
		ev.Type, ev.Result = EventSubtaskHalted, result
		d.emit(ev)
		return result, nil, true
	}

	prompt := m.InjectedContext
	if prompt == "" {
		prompt = st.Description
	}
	req := agent.Request{SubtaskID: st.ID, Prompt: prompt, SystemPrompt: d.systemPrompt}

	agents := []string{primary}
	if cfg.Fallback.Enabled {
		agents = append(agents, d.agents.FallbackChain(primary, cfg.Fallback.Agents)...)
	}

	var lastErr *Error
	attempt := 0
	for ai, agentID := range agents {
		// The primary gets MaxRetries retries; each fallback is tried once.
		tries := 1
		if ai == 0 {
			tries += max(cfg.Retry.MaxRetries, 0)
		}
		for try := 0; try < tries; try++ {
			if attempt > 0 {
				if lastErr != nil && !lastErr.Retryable() {
					break
				}
				if d.tracker.IsHalted() || ctx.Err() != nil {
					break
				}
				_ = d.tracker.Transition(st.ID, models.ExecStateRetrying)
				n := d.tracker.IncrementRetry(st.ID)
				ev := base
				ev.Type, ev.AgentID, ev.Attempt, ev.Message = EventSubtaskRetrying, agentID, attempt+1, lastErr.Error()
				d.emit(ev)
				d.logger.Info("dispatch: retrying subtask",
					zap.String("subtask", st.ID),
					zap.String("agent", agentID),
					zap.Int("retry", n),
				)
				if ai == 0 {
					if err := sleep(ctx, Backoff(cfg.Retry, try-1)); err != nil {
						break
					}
				}
				// A halt may arrive while backing off.
				if d.tracker.IsHalted() || ctx.Err() != nil {
					break
				}
			}

			attempt++
			_ = d.tracker.Transition(st.ID, models.ExecStateRunning)
			ev := base
			ev.Type, ev.AgentID, ev.Attempt = EventSubtaskStarted, agentID, attempt
			d.emit(ev)

			req.AgentID = agentID
			var lines *agent.LineBuffer
			if d.output != nil {
				lines = agent.NewLineBuffer(func(line string) { d.output(st.ID, line) })
				req.OnChunk = lines.Write
			}
			resp, derr := d.invoke(ctx, req, agentID, attempt, cfg)
			if lines != nil {
				lines.Flush()
			}
			result.AgentID = agentID
			result.Attempts = attempt
			if derr == nil {
				return d.succeed(base, result, resp, lastErr, ai > 0), nil, false
			}
			lastErr = derr
			d.tracker.RecordError(derr.Record(d.now()))
			d.logger.Debug("dispatch: attempt failed",
				zap.String("subtask", st.ID),
				zap.String("agent", agentID),
				zap.String("kind", string(derr.Kind)),
				zap.Error(derr.Err),
			)
		}
		if lastErr != nil && !lastErr.Retryable() {
			break
		}
		if d.tracker.IsHalted() || ctx.Err() != nil {
			break
		}
	}

	return d.fail(base, result, lastErr), lastErr, false
}

// invoke performs one attempt under the per-subtask timeout.
func (d *Dispatcher) invoke(ctx context.Context, req agent.Request, agentID string, attempt int, cfg config.DispatchConfig) (*agent.Response, *Error) {
	actx := ctx
	if st := cfg.Timeout.SubtaskTimeout(); st > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, st)
		defer cancel()
	}
	resp, err := d.agents.Invoke(actx, req)
	if err == nil {
		return resp, nil
	}
	kind := agent.Classify(err)
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		kind = models.ErrorKindTimeout
		err = fmt.Errorf("attempt exceeded deadline: %w", err)
	}
	return nil, NewError(kind, req.SubtaskID, agentID, attempt, err)
}

func (d *Dispatcher) succeed(base Event, result *models.ExecutionResult, resp *agent.Response, prior *Error, fallback bool) *models.ExecutionResult {
	_ = d.tracker.Transition(result.SubtaskID, models.ExecStateCompleted)
	result.Success = true
	result.Output = resp.Output
	result.TokensUsed = resp.TokensUsed()
	result.UsedFallback = fallback
	result.CompletedAt = d.now()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()

	if prior != nil {
		rec := NewError(models.ErrorKindRecovery, result.SubtaskID, result.AgentID, result.Attempts,
			fmt.Errorf("recovered after %s", prior.Kind))
		d.tracker.RecordError(rec.Record(result.CompletedAt))
		ev := base
		ev.Type, ev.AgentID, ev.Attempt, ev.Message = EventSubtaskRecovered, result.AgentID, result.Attempts, rec.Err.Error()
		d.emit(ev)
	}

	ev := base
	ev.Type, ev.AgentID, ev.Attempt, ev.Result = EventSubtaskCompleted, result.AgentID, result.Attempts, result
	d.emit(ev)
	return result
}

func (d *Dispatcher) fail(base Event, result *models.ExecutionResult, derr *Error) *models.ExecutionResult {
	_ = d.tracker.Transition(result.SubtaskID, models.ExecStateFailed)
	result.Success = false
	if derr != nil {
		result.Error = derr.Error()
		result.ErrorKind = derr.Kind
	}
	result.CompletedAt = d.now()
	result.DurationMs = result.CompletedAt.Sub(result.StartedAt).Milliseconds()

	d.logger.Warn("dispatch: subtask failed",
		zap.String("subtask", result.SubtaskID),
		zap.String("agent", result.AgentID),
		zap.Int("attempts", result.Attempts),
		zap.String("error", result.Error),
	)
	ev := base
	ev.Type, ev.AgentID, ev.Attempt, ev.Result = EventSubtaskFailed, result.AgentID, result.Attempts, result
	d.emit(ev)
	return result
}
