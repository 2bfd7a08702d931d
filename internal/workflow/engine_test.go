package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/internal/agent"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/store"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const fourSteps = "Research competitors. Then analyze pricing. Then write a report. Then validate findings."

// recorder wraps a backend and keeps every prompt it was sent.
type recorder struct {
	inner agent.Invoker
	fail  func(req agent.Request) error
	block chan struct{}

	mu      sync.Mutex
	prompts map[string]string
}

func newRecorder() *recorder {
	return &recorder{inner: agent.NewLocalInvoker(0), prompts: make(map[string]string)}
}

func (r *recorder) Invoke(ctx context.Context, req agent.Request) (*agent.Response, error) {
	r.mu.Lock()
	r.prompts[req.SubtaskID] = req.Prompt
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.fail != nil {
		if err := r.fail(req); err != nil {
			return nil, err
		}
	}
	return r.inner.Invoke(ctx, req)
}

func (r *recorder) prompt(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompts[id]
}

// invokerFunc adapts a function to agent.Invoker.
type invokerFunc func(ctx context.Context, req agent.Request) (*agent.Response, error)

func (f invokerFunc) Invoke(ctx context.Context, req agent.Request) (*agent.Response, error) {
	return f(ctx, req)
}

type badRequest struct{}

func (badRequest) Error() string   { return "bad request" }
func (badRequest) HTTPStatus() int { return 400 }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Dispatch.Retry.InitialDelayMs = 1
	cfg.Dispatch.Retry.MaxDelayMs = 2
	cfg.Progress.FlushIntervalMs = 5
	return cfg
}

func counterIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func newTestEngine(t *testing.T, cfg *config.Config, backend agent.Invoker, opts ...Option) *Engine {
	t.Helper()
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(models.AgentInfo{ID: "rec"}, backend))
	opts = append([]Option{WithIDGenerator(counterIDs())}, opts...)
	return NewEngine(cfg, reg, opts...)
}

// drain collects every event until the engine is closed.
func drain(e *Engine, onEvent func(Event)) (wait func() []Event) {
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range e.Events() {
			if onEvent != nil {
				onEvent(ev)
			}
			events = append(events, ev)
		}
	}()
	return func() []Event {
		e.Close()
		<-done
		return events
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestEngine_RunsWorkflowEndToEnd(t *testing.T) {
	backend := newRecorder()
	e := newTestEngine(t, testConfig(), backend)
	wait := drain(e, nil)

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	events := wait()

	subtasks := res.Decomposition.Subtasks
	require.GreaterOrEqual(t, len(subtasks), 4)
	assert.Equal(t, models.WorkflowCompleted, res.Status)
	assert.Len(t, res.Groups, len(subtasks))
	assert.Len(t, res.Stored, len(subtasks))
	assert.True(t, res.Integrity.Valid)
	assert.Empty(t, res.Integrity.Missing)
	require.NotNil(t, res.Reintegration)
	assert.True(t, res.Reintegration.Complete)
	assert.Zero(t, res.PersistErrors)

	for i, rec := range res.Stored {
		assert.Equal(t, subtasks[i].ID, rec.SubtaskID, "results are stored in dependency order")
		assert.Equal(t, res.WorkflowID, rec.WorkflowID)
		assert.Equal(t, i, rec.ExecutionLevel)
	}

	for _, st := range subtasks {
		sum, ok := res.Progress[st.ID]
		require.True(t, ok, "summary for %s", st.ID)
		assert.Equal(t, sum.Total, sum.Completed, "all todos of %s completed", st.ID)
		assert.Equal(t, 100.0, sum.OverallPercentage)
		require.NotNil(t, res.TodoLists[st.ID])
		_, still := e.Progress().Snapshot(st.ID)
		assert.False(t, still, "todo list of %s unregistered", st.ID)
	}

	// Later subtasks see the outputs of the ones they depend on.
	assert.NotContains(t, backend.prompt(subtasks[0].ID), inputsHeader)
	second := backend.prompt(subtasks[1].ID)
	assert.Contains(t, second, inputsHeader)
	assert.Contains(t, second, "["+subtasks[0].ID+"]")

	types := eventTypes(events)
	require.NotEmpty(t, types)
	assert.Equal(t, EventWorkflowStarted, types[0])
	assert.Equal(t, EventWorkflowCompleted, types[len(types)-1])
	assert.Contains(t, types, EventBatchStarted)
	assert.Contains(t, types, EventSubtaskCompleted)
	assert.Contains(t, types, EventTodoProgress)
	assert.Equal(t, models.WorkflowCompleted, events[len(events)-1].Status)
}

func TestEngine_StreamedMarkersUpdateProgressDuringCall(t *testing.T) {
	var (
		e      *Engine
		mu     sync.Mutex
		during = make(map[string]models.TodoStatus)
	)
	backend := invokerFunc(func(_ context.Context, req agent.Request) (*agent.Response, error) {
		list, ok := e.Progress().Snapshot(req.SubtaskID)
		if !ok || len(list.Items) == 0 || req.OnChunk == nil {
			return nil, badRequest{}
		}
		first := list.Items[0].ID

		req.OnChunk(fmt.Sprintf("🔄 [%s] in progress\n[CHECKPOINT:%s:", first, first))
		req.OnChunk("COMPLETED]\n")

		list, _ = e.Progress().Snapshot(req.SubtaskID)
		mu.Lock()
		during[req.SubtaskID] = list.Item(first).Status
		mu.Unlock()
		// The final output repeats the markers; they are not applied twice.
		return &agent.Response{Output: fmt.Sprintf("[CHECKPOINT:%s:COMPLETED]\n", first)}, nil
	})
	e = newTestEngine(t, testConfig(), backend)
	wait := drain(e, nil)

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	wait()

	require.NotEmpty(t, during)
	for _, st := range res.Decomposition.Subtasks {
		assert.Equal(t, models.TodoStatusCompleted, during[st.ID], "first todo of %s completed mid-call", st.ID)
		assert.GreaterOrEqual(t, res.Progress[st.ID].Completed, 1)
	}
}

func TestEngine_FailureSkipsDependents(t *testing.T) {
	backend := newRecorder()
	backend.fail = func(req agent.Request) error {
		if strings.Contains(req.Prompt, "TYPE: "+string(models.SubtaskTypeResearch)) {
			return badRequest{}
		}
		return nil
	}
	cfg := testConfig()
	cfg.Dispatch.ErrorHandling.HaltOnCriticalFailure = false
	e := newTestEngine(t, cfg, backend)
	wait := drain(e, nil)

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	wait()

	subtasks := res.Decomposition.Subtasks
	first := subtasks[0].ID
	assert.Equal(t, models.WorkflowFailed, res.Status)
	assert.Equal(t, []string{first}, res.Run.State.Failed)
	assert.Len(t, res.Run.State.Skipped, len(subtasks)-1)

	require.Len(t, res.Stored, 1)
	assert.False(t, res.Stored[0].Success)
	assert.Equal(t, models.ErrorKindValidation, res.Stored[0].ErrorKind)

	assert.False(t, res.Reintegration.Complete)
	assert.Equal(t, []string{first}, res.Reintegration.Failed)
	assert.Len(t, res.Reintegration.Missing, len(subtasks)-1)
	assert.True(t, res.Integrity.Valid)
}

func TestEngine_HaltStopsLaterGroups(t *testing.T) {
	backend := newRecorder()
	backend.block = make(chan struct{})
	e := newTestEngine(t, testConfig(), backend)

	var once sync.Once
	wait := drain(e, func(ev Event) {
		if ev.Type == EventSubtaskStarted {
			once.Do(func() {
				assert.True(t, e.Halt("operator stop"))
				close(backend.block)
			})
		}
	})

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	events := wait()

	subtasks := res.Decomposition.Subtasks
	assert.Equal(t, models.WorkflowHalted, res.Status)
	assert.Equal(t, "operator stop", res.Run.State.HaltReason)
	assert.Equal(t, []string{subtasks[0].ID}, res.Run.State.Completed)
	assert.Len(t, res.Run.State.Halted, len(subtasks)-1)
	assert.Len(t, res.Stored, 1)
	assert.Contains(t, eventTypes(events), EventWorkflowHalted)
	assert.False(t, e.Halt("again"), "nothing is running any more")
}

func TestEngine_RejectsEmptyPrompt(t *testing.T) {
	e := newTestEngine(t, testConfig(), newRecorder())
	defer e.Close()

	_, err := e.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestEngine_PersistsToSQLite(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer db.Close()

	st := store.New(store.WithPersister(db))
	e := newTestEngine(t, testConfig(), newRecorder(), WithStore(st))
	wait := drain(e, nil)

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	wait()

	loaded, err := db.LoadWorkflow(res.WorkflowID)
	require.NoError(t, err)
	assert.Len(t, loaded, len(res.Stored))
	rep := store.VerifyRecords(res.WorkflowID, loaded, res.Reintegration.Order)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Missing)

	state, err := db.LoadWorkflowState(res.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, state.Status)
}

func TestEngine_HaltSignalFile(t *testing.T) {
	root := t.TempDir()
	backend := newRecorder()
	backend.block = make(chan struct{})
	e := newTestEngine(t, testConfig(), backend, WithProjectRoot(root))

	var (
		sendOnce    sync.Once
		releaseOnce sync.Once
		fallback    *time.Timer
	)
	release := func() { releaseOnce.Do(func() { close(backend.block) }) }
	wait := drain(e, func(ev Event) {
		switch ev.Type {
		case EventSubtaskStarted:
			sendOnce.Do(func() {
				assert.NoError(t, SendHalt(root, "from test"))
				fallback = time.AfterFunc(5*time.Second, release)
			})
		case EventWorkflowHalted:
			release()
		}
	})

	res, err := e.Run(context.Background(), fourSteps)
	require.NoError(t, err)
	wait()
	if fallback != nil {
		fallback.Stop()
	}

	assert.Equal(t, models.WorkflowHalted, res.Status)
	assert.True(t, strings.HasPrefix(res.Run.State.HaltReason, "halt signal received"))
}
