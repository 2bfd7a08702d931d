package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/internal/agent"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// scripted is a fake backend that records calls and concurrency.
type scripted struct {
	delay time.Duration
	fail  func(subtaskID string, call int) error
	// deltas are sent to OnChunk before the call returns.
	deltas []string

	running atomic.Int32
	peak    atomic.Int32

	mu      sync.Mutex
	calls   map[string]int
	order   []string
	prompts map[string]string
}

func newScripted() *scripted {
	return &scripted{calls: make(map[string]int), prompts: make(map[string]string)}
}

func (s *scripted) Invoke(ctx context.Context, req agent.Request) (*agent.Response, error) {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls[req.SubtaskID]++
	call := s.calls[req.SubtaskID]
	s.order = append(s.order, req.SubtaskID)
	s.prompts[req.SubtaskID] = req.Prompt
	s.mu.Unlock()

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	for _, d := range s.deltas {
		if req.OnChunk != nil {
			req.OnChunk(d)
		}
	}
	if s.fail != nil {
		if err := s.fail(req.SubtaskID, call); err != nil {
			return nil, err
		}
	}
	return &agent.Response{Output: "done " + req.SubtaskID, InputTokens: 2, OutputTokens: 3}, nil
}

func (s *scripted) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *scripted) promptFor(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[id]
}

func (s *scripted) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type statusError int

func (e statusError) Error() string   { return "upstream status" }
func (e statusError) HTTPStatus() int { return int(e) }

func registry(t *testing.T, backends map[string]agent.Invoker, def string) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry(agent.WithUnhealthyThreshold(0))
	for id, inv := range backends {
		require.NoError(t, r.Register(models.AgentInfo{ID: id}, inv))
	}
	require.NoError(t, r.SetDefault(def))
	return r
}

func subtask(id string, p models.Priority, deps ...string) *models.Subtask {
	st := &models.Subtask{
		ID:          id,
		Title:       id,
		Description: "work on " + id,
		Type:        models.SubtaskTypeAnalysis,
		Priority:    p,
		Status:      models.SubtaskStatusPending,
	}
	for _, d := range deps {
		st.AddDependency(d, models.DependencyBlocking, "")
	}
	return st
}

func group(index int, subtasks ...*models.Subtask) *models.BatchGroup {
	g := &models.BatchGroup{GroupID: "g" + string(rune('0'+index)), Index: index}
	for _, st := range subtasks {
		g.Members = append(g.Members, &models.BatchMember{Subtask: st, BatchGroupID: g.GroupID, IsBatchable: len(subtasks) > 1})
	}
	return g
}

func fastConfig() config.DispatchConfig {
	cfg := config.Default().Dispatch
	cfg.Retry.InitialDelayMs = 1
	cfg.Retry.MaxDelayMs = 2
	cfg.Timeout.SubtaskTimeoutMs = 0
	cfg.Timeout.BatchTimeoutMs = 0
	return cfg
}
