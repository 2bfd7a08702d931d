package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/internal/agent"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

func TestExecuteBatch_NeverExceedsConcurrencyLimit(t *testing.T) {
	backend := newScripted()
	backend.delay = 30 * time.Millisecond
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	tracker := NewExecutionTracker("wf")

	var mu sync.Mutex
	maxRunning := 0
	d := NewDispatcher(reg, tracker, WithListener(func(ev Event) {
		if ev.Type != EventSubtaskStarted {
			return
		}
		n := len(tracker.Snapshot().Running)
		mu.Lock()
		maxRunning = max(maxRunning, n)
		mu.Unlock()
	}))

	cfg := fastConfig()
	cfg.MaxConcurrentRequests = 2
	cfg.Concurrency.MaxConcurrentSubtasks = 4

	var subs []*models.Subtask
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		subs = append(subs, subtask(id, models.PriorityMedium))
	}
	res := d.ExecuteBatch(context.Background(), group(0, subs...), cfg)

	assert.True(t, res.Success)
	assert.Len(t, res.Results, 6)
	assert.EqualValues(t, 2, backend.peak.Load())
	mu.Lock()
	assert.LessOrEqual(t, maxRunning, 2)
	mu.Unlock()
	assert.Len(t, tracker.Snapshot().Completed, 6)
}

func TestExecuteBatch_PriorityOrder(t *testing.T) {
	backend := newScripted()
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	d := NewDispatcher(reg, NewExecutionTracker("wf"))

	cfg := fastConfig()
	cfg.MaxConcurrentRequests = 1

	d.ExecuteBatch(context.Background(), group(0,
		subtask("low", models.PriorityLow),
		subtask("high", models.PriorityHigh),
		subtask("medium", models.PriorityMedium),
		subtask("high2", models.PriorityHigh),
	), cfg)

	assert.Equal(t, []string{"high", "high2", "medium", "low"}, backend.callOrder())
}

func TestExecuteBatch_RetriesThenRecovers(t *testing.T) {
	backend := newScripted()
	backend.fail = func(_ string, call int) error {
		if call < 3 {
			return statusError(500)
		}
		return nil
	}
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	tracker := NewExecutionTracker("wf")
	d := NewDispatcher(reg, tracker)

	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), fastConfig())

	require.True(t, res.Success)
	r := res.Results[0]
	assert.True(t, r.Success)
	assert.Equal(t, 3, r.Attempts)
	assert.False(t, r.UsedFallback)
	assert.Equal(t, "done s", r.Output)
	assert.EqualValues(t, 5, r.TokensUsed)

	snap := tracker.Snapshot()
	assert.Equal(t, 2, snap.RetryCounts["s"])
	require.Len(t, snap.Errors, 3)
	assert.Equal(t, models.ErrorKindAPI, snap.Errors[0].Kind)
	assert.Equal(t, models.ErrorKindAPI, snap.Errors[1].Kind)
	assert.Equal(t, models.ErrorKindRecovery, snap.Errors[2].Kind)
	assert.Equal(t, models.ExecStateCompleted, snap.SubtaskStates["s"])
}

func TestExecuteBatch_OutputSinkSeesLinesBeforeCompletion(t *testing.T) {
	backend := newScripted()
	backend.deltas = []string{"[CHECKPOINT:todo-1:", "COMPLETED]\nhalf", " a line"}
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")

	var (
		mu  sync.Mutex
		log []string
	)
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}
	d := NewDispatcher(reg, NewExecutionTracker("wf"),
		WithOutputSink(func(id, line string) { record(id + ": " + line) }),
		WithListener(func(ev Event) {
			if ev.Type == EventSubtaskCompleted {
				record("completed " + ev.SubtaskID)
			}
		}),
	)

	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), fastConfig())

	require.True(t, res.Success)
	assert.Equal(t, []string{
		"s: [CHECKPOINT:todo-1:COMPLETED]",
		"s: half a line",
		"completed s",
	}, log)
}

func TestExecuteBatch_ValidationErrorsAreNotRetried(t *testing.T) {
	backend := newScripted()
	backend.fail = func(string, int) error { return statusError(400) }
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	tracker := NewExecutionTracker("wf")
	d := NewDispatcher(reg, tracker)

	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), fastConfig())

	assert.False(t, res.Success)
	assert.Equal(t, 1, backend.callsFor("s"))
	assert.Equal(t, models.ErrorKindValidation, res.Results[0].ErrorKind)
	require.Len(t, res.Errors, 1)
	assert.False(t, res.Errors[0].Retryable())
	assert.Zero(t, tracker.Snapshot().RetryCounts["s"])
	assert.Equal(t, models.ExecStateFailed, tracker.State("s"))
}

func TestExecuteBatch_FallbackAfterRetriesExhausted(t *testing.T) {
	primary := newScripted()
	primary.fail = func(string, int) error { return statusError(503) }
	backup := newScripted()
	reg := registry(t, map[string]agent.Invoker{"primary": primary, "backup": backup}, "primary")
	tracker := NewExecutionTracker("wf")
	d := NewDispatcher(reg, tracker)

	cfg := fastConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Fallback = config.FallbackConfig{Enabled: true, Agents: []string{"primary", "backup"}}

	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), cfg)

	require.True(t, res.Success)
	r := res.Results[0]
	assert.Equal(t, "backup", r.AgentID)
	assert.True(t, r.UsedFallback)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 2, primary.callsFor("s"))
	assert.Equal(t, 1, backup.callsFor("s"))

	snap := tracker.Snapshot()
	assert.Equal(t, 2, snap.RetryCounts["s"])
	assert.Equal(t, models.ErrorKindRecovery, snap.Errors[len(snap.Errors)-1].Kind)
}

func TestExecuteBatch_FallbackDisabled(t *testing.T) {
	primary := newScripted()
	primary.fail = func(string, int) error { return statusError(503) }
	backup := newScripted()
	reg := registry(t, map[string]agent.Invoker{"primary": primary, "backup": backup}, "primary")
	d := NewDispatcher(reg, NewExecutionTracker("wf"))

	cfg := fastConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Fallback = config.FallbackConfig{Enabled: false, Agents: []string{"backup"}}

	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), cfg)

	assert.False(t, res.Success)
	assert.Zero(t, backup.callsFor("s"))
}

func TestExecuteBatch_SubtaskTimeout(t *testing.T) {
	backend := newScripted()
	backend.delay = time.Second
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	d := NewDispatcher(reg, NewExecutionTracker("wf"))

	cfg := fastConfig()
	cfg.Retry.MaxRetries = 1
	cfg.Timeout.SubtaskTimeoutMs = 20

	start := time.Now()
	res := d.ExecuteBatch(context.Background(), group(0, subtask("s", models.PriorityHigh)), cfg)

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrorKindTimeout, res.Results[0].ErrorKind)
	assert.Equal(t, 2, backend.callsFor("s"), "timeouts are retried")
	kind, ok := KindOf(res.Errors[0])
	assert.True(t, ok)
	assert.Equal(t, models.ErrorKindTimeout, kind)
	assert.ErrorIs(t, res.Errors[0], context.DeadlineExceeded)
}

func TestExecuteBatch_SettlesAllMembers(t *testing.T) {
	backend := newScripted()
	backend.fail = func(id string, _ int) error {
		if id == "bad" {
			return errors.New("boom")
		}
		return nil
	}
	reg := registry(t, map[string]agent.Invoker{"a": backend}, "a")
	d := NewDispatcher(reg, NewExecutionTracker("wf"))

	cfg := fastConfig()
	cfg.Retry.MaxRetries = 0

	res := d.ExecuteBatch(context.Background(), group(0,
		subtask("bad", models.PriorityHigh),
		subtask("good1", models.PriorityMedium),
		subtask("good2", models.PriorityMedium),
	), cfg)

	assert.False(t, res.Success)
	succeeded := 0
	for _, r := range res.Results {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)
}

func TestBatchSucceeded(t *testing.T) {
	ok := &models.ExecutionResult{Success: true}
	bad := &models.ExecutionResult{}

	tests := []struct {
		policy  string
		results []*models.ExecutionResult
		want    bool
	}{
		{config.BatchPolicyAny, []*models.ExecutionResult{ok, ok}, true},
		{config.BatchPolicyAny, []*models.ExecutionResult{ok, bad}, false},
		{"", []*models.ExecutionResult{ok, bad}, false},
		{config.BatchPolicyAll, []*models.ExecutionResult{ok, bad}, true},
		{config.BatchPolicyAll, []*models.ExecutionResult{bad, bad}, false},
		{config.BatchPolicyMajority, []*models.ExecutionResult{ok, ok, bad}, true},
		{config.BatchPolicyMajority, []*models.ExecutionResult{ok, bad, bad}, false},
		{config.BatchPolicyMajority, []*models.ExecutionResult{ok, bad}, true},
		{config.BatchPolicyAny, nil, true},
	}
	for _, tt := range tests {
		if got := batchSucceeded(tt.results, tt.policy); got != tt.want {
			t.Errorf("batchSucceeded(%d results, %q) = %v, want %v", len(tt.results), tt.policy, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	cfg := config.RetryConfig{InitialDelayMs: 100, BackoffMultiplier: 2, MaxDelayMs: 1000}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(cfg, tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
	if got := Backoff(config.RetryConfig{}, 3); got != 0 {
		t.Errorf("Backoff with zero initial delay = %v, want 0", got)
	}
}

func TestConcurrency(t *testing.T) {
	cfg := config.DispatchConfig{MaxConcurrentRequests: 8}
	cfg.Concurrency.MaxConcurrentSubtasks = 3
	if got := Concurrency(cfg); got != 3 {
		t.Errorf("Concurrency = %d, want 3", got)
	}
	if got := Concurrency(config.DispatchConfig{}); got != 1 {
		t.Errorf("Concurrency of zero config = %d, want 1", got)
	}
}
