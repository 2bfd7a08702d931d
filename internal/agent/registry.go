package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// DefaultUnhealthyThreshold is the number of consecutive failures after
// which an agent is marked unhealthy.
const DefaultUnhealthyThreshold = 3

type registered struct {
	info    models.AgentInfo
	invoker Invoker
}

// Registry holds named agent backends and tracks their health.
// It routes requests by AgentID and is itself an Invoker.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*registered
	defaultID string
	threshold int
	logger    *zap.Logger
	now       func() time.Time
}

var _ Invoker = (*Registry)(nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logging.OrNop(l) }
}

// WithUnhealthyThreshold sets how many consecutive failures mark an agent
// unhealthy. Values below 1 disable automatic marking.
func WithUnhealthyThreshold(n int) RegistryOption {
	return func(r *Registry) { r.threshold = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		agents:    make(map[string]*registered),
		threshold: DefaultUnhealthyThreshold,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an agent. The first registered agent becomes the default.
func (r *Registry) Register(info models.AgentInfo, inv Invoker) error {
	if info.ID == "" {
		return fmt.Errorf("registering agent: empty id")
	}
	if inv == nil {
		return fmt.Errorf("registering agent %s: nil invoker", info.ID)
	}
	if info.Status == "" {
		info.Status = models.AgentStatusAvailable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[info.ID]; exists {
		return fmt.Errorf("agent %s already registered", info.ID)
	}
	r.agents[info.ID] = &registered{info: info, invoker: inv}
	if r.defaultID == "" {
		r.defaultID = info.ID
	}
	r.logger.Debug("agent: registered",
		zap.String("agent", info.ID),
		zap.String("provider", info.Provider),
		zap.String("model", info.Model),
	)
	return nil
}

// SetDefault selects the agent used when a request names none.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default agent id, or "" when the registry is empty.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Get returns the invoker registered under id.
func (r *Registry) Get(id string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return a.invoker, nil
}

// Info returns a copy of an agent's descriptor.
func (r *Registry) Info(id string) (models.AgentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return models.AgentInfo{}, false
	}
	return a.info, true
}

// List returns every agent descriptor ordered by id.
func (r *Registry) List() []models.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Healthy reports whether id is registered and available.
func (r *Registry) Healthy(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return ok && a.info.Status == models.AgentStatusAvailable
}

// MarkUnhealthy takes an agent out of fallback rotation.
func (r *Registry) MarkUnhealthy(id, reason string) {
	r.setStatus(id, models.AgentStatusUnhealthy, reason)
}

// MarkHealthy returns an agent to rotation and clears its failure count.
func (r *Registry) MarkHealthy(id string) {
	r.setStatus(id, models.AgentStatusAvailable, "")
}

// Disable removes an agent from rotation until it is marked healthy again.
func (r *Registry) Disable(id string) {
	r.setStatus(id, models.AgentStatusDisabled, "disabled")
}

func (r *Registry) setStatus(id string, status models.AgentStatus, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	a.info.Status = status
	if status == models.AgentStatusAvailable {
		a.info.ConsecutiveFailures = 0
	} else if reason != "" {
		a.info.LastError = reason
	}
	r.logger.Info("agent: status changed",
		zap.String("agent", id),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
}

// FallbackChain returns the agents from names, in order, that can serve as
// fallbacks for primary: registered, available, distinct, and not primary.
func (r *Registry) FallbackChain(primary string, names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{primary: true}
	var chain []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		seen[name] = true
		a, ok := r.agents[name]
		if !ok || a.info.Status != models.AgentStatusAvailable {
			continue
		}
		chain = append(chain, name)
	}
	return chain
}

// Invoke routes req to the agent it names, or to the default agent, and
// records the outcome against that agent's health.
func (r *Registry) Invoke(ctx context.Context, req Request) (*Response, error) {
	id := req.AgentID
	if id == "" || id == models.UnassignedAgent {
		id = r.Default()
	}
	inv, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("invoking %s for subtask %s: %w", id, req.SubtaskID, ErrEmptyPrompt)
	}
	req.AgentID = id

	resp, err := inv.Invoke(ctx, req)
	r.record(id, resp, err)
	if err != nil {
		return nil, fmt.Errorf("invoking %s for subtask %s: %w", id, req.SubtaskID, err)
	}
	if resp.AgentID == "" {
		resp.AgentID = id
	}
	return resp, nil
}

func (r *Registry) record(id string, resp *Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	now := r.now()
	a.info.LastUsed = &now

	if err == nil {
		a.info.ConsecutiveFailures = 0
		a.info.TokensUsed += resp.TokensUsed()
		return
	}

	// Cancellation and bad requests say nothing about the backend's health.
	switch Classify(err) {
	case models.ErrorKindValidation, models.ErrorKindSystem:
		return
	}
	a.info.ConsecutiveFailures++
	a.info.LastError = err.Error()
	if r.threshold > 0 && a.info.ConsecutiveFailures >= r.threshold && a.info.Status == models.AgentStatusAvailable {
		a.info.Status = models.AgentStatusUnhealthy
		r.logger.Warn("agent: marked unhealthy",
			zap.String("agent", id),
			zap.Int("consecutive_failures", a.info.ConsecutiveFailures),
			zap.Error(err),
		)
	}
}
