// Package workflow runs a prompt end to end: it decomposes the prompt,
// batches the subtasks, dispatches them to agents, tracks checklist
// progress from agent output and stores every result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/internal/batch"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/dispatch"
	"github.com/ShayCichocki/taskweave/internal/inject"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/internal/progress"
	"github.com/ShayCichocki/taskweave/internal/slicer"
	"github.com/ShayCichocki/taskweave/internal/store"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ErrEmptyPrompt is returned by Run for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// ErrBusy is returned when Run is called while another run is active.
var ErrBusy = errors.New("a workflow is already running")

// inputsHeader introduces the outputs of earlier subtasks in a prompt.
const inputsHeader = "OUTPUTS FROM EARLIER SUBTASKS:"

// Result is everything a finished run produced.
type Result struct {
	WorkflowID    string                             `json:"workflowId"`
	Status        models.WorkflowStatus              `json:"status"`
	Decomposition *slicer.Decomposition              `json:"decomposition"`
	Groups        []*models.BatchGroup               `json:"groups"`
	Run           *dispatch.RunResult                `json:"run"`
	Stored        []*models.StoredSubtaskResult      `json:"stored"`
	Progress      map[string]progress.Summary        `json:"progress"`
	TodoLists     map[string]*models.SubtaskTodoList `json:"todoLists"`
	Integrity     store.IntegrityReport              `json:"integrity"`
	Reintegration *store.Reintegration               `json:"reintegration"`
	// PersistErrors counts results or states that could not be stored.
	PersistErrors int `json:"persistErrors,omitempty"`
}

// Engine wires the slicing, batching, dispatch, progress and storage
// layers together. One Engine runs one workflow at a time.
type Engine struct {
	cfg      *config.Config
	agents   dispatch.Agents
	slicer   *slicer.Slicer
	batcher  *batch.Batcher
	progress *progress.Tracker
	store    *store.Store
	emitter  *EventEmitter

	projectRoot string
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	mu      sync.Mutex
	running bool
	runner  *dispatch.Runner
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every layer.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithStore replaces the default in-memory store, typically with one
// backed by a persister.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithProjectRoot enables the halt signal watcher under root.
func WithProjectRoot(root string) Option {
	return func(e *Engine) { e.projectRoot = root }
}

// WithEmitter replaces the event emitter.
func WithEmitter(em *EventEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides workflow, subtask and group ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine dispatching to agents.
func NewEngine(cfg *config.Config, agents dispatch.Agents, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:    cfg,
		agents: agents,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	analyzer := analyze.New(cfg.Analysis, analyze.WithLogger(e.logger))
	e.slicer = slicer.New(analyzer,
		slicer.WithLogger(e.logger),
		slicer.WithClock(e.now),
		slicer.WithIDGenerator(e.newID),
	)
	injector := inject.New(cfg.Injection, inject.WithLogger(e.logger), inject.WithClock(e.now))
	e.batcher = batch.New(injector, batch.WithLogger(e.logger), batch.WithIDGenerator(e.newID))
	e.progress = progress.NewTracker(cfg.Progress, progress.WithLogger(e.logger), progress.WithClock(e.now))
	if e.store == nil {
		e.store = store.New(store.WithLogger(e.logger), store.WithClock(e.now))
	}
	if e.emitter == nil {
		e.emitter = NewEventEmitter(DefaultEventBuffer, e.logger)
	}
	return e
}

// Events returns the event stream. It is closed by Close.
func (e *Engine) Events() <-chan Event { return e.emitter.Events() }

// DroppedEvents returns how many events were dropped on a full channel.
func (e *Engine) DroppedEvents() uint64 { return e.emitter.DroppedCount() }

// Store returns the result store.
func (e *Engine) Store() *store.Store { return e.store }

// Progress returns the checklist progress tracker.
func (e *Engine) Progress() *progress.Tracker { return e.progress }

// Close closes the event stream.
func (e *Engine) Close() { e.emitter.Close() }

// Halt stops the running workflow. It reports false when nothing is
// running or the workflow was already halted.
func (e *Engine) Halt(reason string) bool {
	e.mu.Lock()
	r := e.runner
	e.mu.Unlock()
	if r == nil {
		return false
	}
	return r.Halt(reason)
}

// Plan decomposes and batches prompt without dispatching anything.
func (e *Engine) Plan(prompt, workflowID string) (*slicer.Decomposition, []*models.BatchGroup, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, nil, ErrEmptyPrompt
	}
	dec := e.slicer.Decompose(prompt, e.cfg.Slicing)
	for _, st := range dec.Subtasks {
		st.ParentWorkflowID = workflowID
	}
	scaffold := &models.WorkflowScaffold{
		WorkflowID:    workflowID,
		Name:          workflowName(prompt),
		TotalSubtasks: len(dec.Subtasks),
	}
	groups, err := e.batcher.IdentifyBatchableSubtasks(dec.Subtasks, prompt, scaffold)
	if err != nil {
		return dec, nil, fmt.Errorf("batch subtasks: %w", err)
	}
	return dec, groups, nil
}

func workflowName(prompt string) string {
	topics := analyze.ExtractTopics(prompt, 3)
	if len(topics) == 0 {
		return "workflow"
	}
	return strings.Join(topics, " ")
}

// Run executes prompt as one workflow. A workflow that fails or halts is
// not an error; its status is in the result.
func (e *Engine) Run(ctx context.Context, prompt string) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.runner = nil
		e.mu.Unlock()
	}()

	wfID := e.newID()
	dec, groups, err := e.Plan(prompt, wfID)
	if err != nil {
		return nil, err
	}
	if err := e.store.RegisterWorkflow(wfID, dec.Subtasks); err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("workflow", wfID))
	res := &Result{
		WorkflowID:    wfID,
		Decomposition: dec,
		Groups:        groups,
		Progress:      make(map[string]progress.Summary),
		TodoLists:     make(map[string]*models.SubtaskTodoList),
	}
	placement := make(map[string]store.BatchPlacement)
	for _, g := range groups {
		for _, m := range g.Members {
			placement[m.Subtask.ID] = store.BatchPlacement{WorkflowID: wfID, BatchID: g.GroupID, BatchIndex: g.Index}
			if m.Injection != nil && m.Injection.TodoList != nil {
				e.progress.Register(m.Injection.TodoList)
			}
		}
	}

	tracker := dispatch.NewExecutionTracker(wfID,
		dispatch.WithTrackerLogger(e.logger),
		dispatch.WithTrackerClock(e.now),
	)
	var persistMu sync.Mutex
	// Subtasks whose markers already arrived line by line skip the final parse.
	var streamed sync.Map
	output := func(subtaskID, line string) {
		streamed.Store(subtaskID, true)
		e.progress.ProcessAgentResponse(subtaskID, line, e.now())
	}
	listener := func(ev dispatch.Event) {
		if (ev.Type == dispatch.EventSubtaskCompleted || ev.Type == dispatch.EventSubtaskFailed) && ev.Result != nil {
			if _, ok := streamed.Load(ev.SubtaskID); !ok && ev.Result.Output != "" {
				e.progress.ProcessAgentResponse(ev.SubtaskID, ev.Result.Output, ev.Result.CompletedAt)
			}
			if _, err := e.store.Put(*ev.Result, placement[ev.SubtaskID]); err != nil {
				log.Warn("workflow: storing result", zap.String("subtask", ev.SubtaskID), zap.Error(err))
				persistMu.Lock()
				res.PersistErrors++
				persistMu.Unlock()
			}
		}
		e.emitter.Emit(fromDispatch(ev))
	}
	d := dispatch.NewDispatcher(e.agents, tracker,
		dispatch.WithLogger(e.logger),
		dispatch.WithListener(listener),
		dispatch.WithOutputSink(output),
		dispatch.WithClock(e.now),
	)
	runner := dispatch.NewRunner(d, e.cfg.Dispatch, dispatch.WithBeforeBatch(func(g *models.BatchGroup) {
		e.attachInputs(wfID, g)
	}))

	e.mu.Lock()
	e.runner = runner
	e.mu.Unlock()

	unsubscribe := e.progress.SubscribeBatches(func(b progress.BatchedProgressEvent) {
		if len(b.Updates) == 0 {
			return
		}
		last := b.Updates[len(b.Updates)-1]
		sum := progress.Summarize(last.TodoList, e.now().UnixMilli())
		e.emitter.Emit(Event{
			Type:       EventTodoProgress,
			WorkflowID: wfID,
			SubtaskID:  b.SubtaskID,
			Message:    fmt.Sprintf("%d/%d todos completed", sum.Completed, sum.Total),
			Progress:   &sum,
			Timestamp:  b.Timestamp,
		})
	})
	defer unsubscribe()

	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		e.progress.Run(flushCtx)
	}()

	if e.projectRoot != "" {
		if err := ClearHalt(e.projectRoot); err != nil {
			log.Warn("workflow: clearing stale halt signal", zap.Error(err))
		}
		hw, err := NewHaltWatcher(e.projectRoot, func(reason string) { runner.Halt(reason) }, e.logger)
		if err != nil {
			log.Warn("workflow: halt watcher disabled", zap.Error(err))
		} else {
			defer hw.Close()
		}
	}

	e.emitter.Emit(Event{
		Type:       EventWorkflowStarted,
		WorkflowID: wfID,
		Message:    fmt.Sprintf("%d subtasks in %d groups", len(dec.Subtasks), len(groups)),
		Timestamp:  e.now(),
	})
	log.Info("workflow: started",
		zap.Int("subtasks", len(dec.Subtasks)),
		zap.Int("groups", len(groups)),
	)

	res.Run = runner.Run(ctx, groups)
	res.Status = res.Run.Status

	stopFlush()
	<-flushDone

	for _, st := range dec.Subtasks {
		if sum, ok := e.progress.GetProgressSummary(st.ID); ok {
			res.Progress[st.ID] = sum
		}
		if list := e.progress.Unregister(st.ID); list != nil {
			res.TodoLists[st.ID] = list
		}
	}

	if err := e.store.SaveState(res.Run.State); err != nil {
		log.Warn("workflow: persisting state", zap.Error(err))
		res.PersistErrors++
	}
	res.Stored = e.store.ListByWorkflow(wfID)
	if rep, err := e.store.VerifyIntegrity(wfID); err == nil {
		res.Integrity = rep
	}
	if data, err := e.store.ReintegrationData(wfID); err == nil {
		res.Reintegration = data
	}

	e.emitter.Emit(Event{
		Type:       EventWorkflowCompleted,
		WorkflowID: wfID,
		Status:     res.Status,
		Message:    res.Run.State.HaltReason,
		Timestamp:  e.now(),
	})
	log.Info("workflow: finished",
		zap.String("status", string(res.Status)),
		zap.Int("stored", len(res.Stored)),
		zap.Int("persist_errors", res.PersistErrors),
	)
	return res, nil
}

// attachInputs appends the outputs of each member's completed inputs to
// its prompt.
func (e *Engine) attachInputs(workflowID string, g *models.BatchGroup) {
	limit := e.cfg.Injection.MaxContextLength
	for _, m := range g.Members {
		inputs := e.store.Inputs(workflowID, m.Subtask.ID)
		if len(inputs) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString(m.InjectedContext)
		if m.InjectedContext != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(inputsHeader)
		for _, in := range inputs {
			fmt.Fprintf(&b, "\n[%s]\n%s\n", in.SubtaskID, inject.Compress(in.Output, limit))
		}
		m.InjectedContext = b.String()
	}
}
