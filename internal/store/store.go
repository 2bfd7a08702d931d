// Package store holds the canonical results of dispatched subtasks together
// with the topology needed to reassemble them in dependency order.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/graph"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	// ErrNotFound is returned for unknown workflows, subtasks or results.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRegistered is returned when a workflow id is reused.
	ErrAlreadyRegistered = errors.New("workflow already registered")
)

// Persister writes results and workflow states to durable storage.
type Persister interface {
	SaveResult(r *models.StoredSubtaskResult) error
	SaveWorkflowState(s *models.ExecutionState) error
}

// BatchPlacement locates a result within its workflow's batches.
type BatchPlacement struct {
	WorkflowID string
	BatchID    string
	BatchIndex int
}

// topology is the dependency structure captured at registration.
type topology struct {
	order    []string
	levels   [][]string
	level    map[string]int
	parents  map[string][]string
	children map[string][]string
	chain    map[string][]string
	inputs   map[string][]string
}

// Store is the in-memory result table. Callers only ever see clones.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*topology
	results   map[string]map[string]*models.StoredSubtaskResult
	seq       int64

	persister Persister
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister mirrors every stored result to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithClock overrides the time source for storage timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		workflows: make(map[string]*topology),
		results:   make(map[string]map[string]*models.StoredSubtaskResult),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorkflow captures the dependency topology of a workflow's subtasks.
func (s *Store) RegisterWorkflow(workflowID string, subtasks []*models.Subtask) error {
	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return fmt.Errorf("registering workflow %s: %w", workflowID, err)
	}
	levels, err := g.Layers()
	if err != nil {
		return fmt.Errorf("registering workflow %s: %w", workflowID, err)
	}

	top := &topology{
		levels:   levels,
		level:    make(map[string]int),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
		chain:    make(map[string][]string),
		inputs:   make(map[string][]string),
	}
	pos := make(map[string]int)
	for _, layer := range levels {
		for _, id := range layer {
			pos[id] = len(top.order)
			top.order = append(top.order, id)
		}
	}
	for _, st := range subtasks {
		top.level[st.ID] = g.Level(st.ID)
		top.parents[st.ID] = g.GetDependencies(st.ID)
		top.children[st.ID] = g.GetDependents(st.ID)
		top.chain[st.ID] = g.Ancestors(st.ID)
		top.inputs[st.ID] = inputChain(st, pos)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[workflowID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, workflowID)
	}
	s.workflows[workflowID] = top
	s.results[workflowID] = make(map[string]*models.StoredSubtaskResult)
	s.logger.Debug("store: workflow registered",
		zap.String("workflow", workflowID),
		zap.Int("subtasks", len(subtasks)),
		zap.Int("levels", len(levels)),
	)
	return nil
}

// inputChain lists every known dependency of st, of any kind, in
// topological order.
func inputChain(st *models.Subtask, pos map[string]int) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range st.Dependencies {
		if _, ok := pos[d.SubtaskID]; !ok || seen[d.SubtaskID] {
			continue
		}
		seen[d.SubtaskID] = true
		ids = append(ids, d.SubtaskID)
	}
	sort.SliceStable(ids, func(i, j int) bool { return pos[ids[i]] < pos[ids[j]] })
	return ids
}

// Put stores the result of a subtask, replacing any earlier one. It assigns
// the execution order, storage timestamp and checksum, and returns a snapshot.
// A persistence failure is returned after the in-memory copy is stored.
func (s *Store) Put(result models.ExecutionResult, at BatchPlacement) (*models.StoredSubtaskResult, error) {
	s.mu.Lock()
	top, ok := s.workflows[at.WorkflowID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("storing result for %s: workflow %s: %w", result.SubtaskID, at.WorkflowID, ErrNotFound)
	}
	level, ok := top.level[result.SubtaskID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("storing result: subtask %s in workflow %s: %w", result.SubtaskID, at.WorkflowID, ErrNotFound)
	}

	s.seq++
	rec := &models.StoredSubtaskResult{
		ExecutionResult:  result,
		WorkflowID:       at.WorkflowID,
		BatchID:          at.BatchID,
		BatchIndex:       at.BatchIndex,
		ExecutionOrder:   s.seq,
		DependencyChain:  nonNil(top.chain[result.SubtaskID]),
		ParentSubtaskIDs: nonNil(top.parents[result.SubtaskID]),
		ChildSubtaskIDs:  nonNil(top.children[result.SubtaskID]),
		InputChain:       append([]string(nil), top.inputs[result.SubtaskID]...),
		ExecutionLevel:   level,
		StorageTimestamp: s.now().UTC(),
	}
	rec.Seal()
	if _, replaced := s.results[at.WorkflowID][result.SubtaskID]; replaced {
		s.logger.Debug("store: replacing result", zap.String("subtask", result.SubtaskID))
	}
	s.results[at.WorkflowID][result.SubtaskID] = rec
	snapshot := rec.Clone()
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveResult(snapshot); err != nil {
			return snapshot.Clone(), fmt.Errorf("persisting result %s: %w", result.SubtaskID, err)
		}
	}
	return snapshot, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string(nil), ids...)
}

// SaveState persists a workflow's execution state when a persister is set.
func (s *Store) SaveState(state *models.ExecutionState) error {
	if s.persister == nil || state == nil {
		return nil
	}
	if err := s.persister.SaveWorkflowState(state); err != nil {
		return fmt.Errorf("persisting state of %s: %w", state.WorkflowID, err)
	}
	return nil
}

// Get returns a snapshot of one stored result.
func (s *Store) Get(workflowID, subtaskID string) (*models.StoredSubtaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.results[workflowID][subtaskID]
	if !ok {
		return nil, fmt.Errorf("result %s/%s: %w", workflowID, subtaskID, ErrNotFound)
	}
	return rec.Clone(), nil
}

// ListByWorkflow returns snapshots of a workflow's results in execution order.
func (s *Store) ListByWorkflow(workflowID string) []*models.StoredSubtaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.StoredSubtaskResult, 0, len(s.results[workflowID]))
	for _, rec := range s.results[workflowID] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutionOrder < out[j].ExecutionOrder })
	return out
}

// Inputs returns the successful results of the subtasks feeding subtaskID,
// in topological order.
func (s *Store) Inputs(workflowID, subtaskID string) []*models.StoredSubtaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	top, ok := s.workflows[workflowID]
	if !ok {
		return nil
	}
	var out []*models.StoredSubtaskResult
	for _, id := range top.inputs[subtaskID] {
		if rec, ok := s.results[workflowID][id]; ok && rec.Success {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// IntegrityReport is the result of re-verifying stored checksums.
type IntegrityReport struct {
	WorkflowID string   `json:"workflowId"`
	Checked    int      `json:"checked"`
	Valid      bool     `json:"valid"`
	Corrupted  []string `json:"corrupted,omitempty"`
	// Missing lists registered subtasks without a stored result.
	Missing []string `json:"missing,omitempty"`
}

// VerifyRecords checks every record's checksum. expected, when non-nil,
// names the subtasks that should be present.
func VerifyRecords(workflowID string, records []*models.StoredSubtaskResult, expected []string) IntegrityReport {
	rep := IntegrityReport{WorkflowID: workflowID, Checked: len(records)}
	present := make(map[string]bool, len(records))
	for _, rec := range records {
		present[rec.SubtaskID] = true
		if !rec.VerifyChecksum() {
			rep.Corrupted = append(rep.Corrupted, rec.SubtaskID)
		}
	}
	for _, id := range expected {
		if !present[id] {
			rep.Missing = append(rep.Missing, id)
		}
	}
	sort.Strings(rep.Corrupted)
	rep.Valid = len(rep.Corrupted) == 0
	return rep
}

// VerifyIntegrity recomputes every stored checksum of a workflow.
func (s *Store) VerifyIntegrity(workflowID string) (IntegrityReport, error) {
	s.mu.RLock()
	top, ok := s.workflows[workflowID]
	if !ok {
		s.mu.RUnlock()
		return IntegrityReport{}, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	records := make([]*models.StoredSubtaskResult, 0, len(s.results[workflowID]))
	for _, rec := range s.results[workflowID] {
		records = append(records, rec)
	}
	rep := VerifyRecords(workflowID, records, top.order)
	s.mu.RUnlock()

	if !rep.Valid {
		s.logger.Warn("store: integrity check failed",
			zap.String("workflow", workflowID),
			zap.Strings("corrupted", rep.Corrupted),
		)
	}
	return rep, nil
}

// Reintegration is everything needed to reassemble a workflow's outputs.
type Reintegration struct {
	WorkflowID string `json:"workflowId"`
	// Levels groups subtask ids by execution level.
	Levels [][]string `json:"levels"`
	// Order is a topological order over all registered subtasks.
	Order    []string                               `json:"order"`
	Results  map[string]*models.StoredSubtaskResult `json:"results"`
	Complete bool                                   `json:"complete"`
	Missing  []string                               `json:"missing,omitempty"`
	Failed   []string                               `json:"failed,omitempty"`
}

// ReintegrationData returns the topology and results of a workflow.
// Complete is true when every subtask has a successful result.
func (s *Store) ReintegrationData(workflowID string) (*Reintegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	top, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}

	out := &Reintegration{
		WorkflowID: workflowID,
		Levels:     make([][]string, len(top.levels)),
		Order:      append([]string(nil), top.order...),
		Results:    make(map[string]*models.StoredSubtaskResult, len(s.results[workflowID])),
	}
	for i, layer := range top.levels {
		out.Levels[i] = append([]string(nil), layer...)
	}
	for _, id := range top.order {
		rec, ok := s.results[workflowID][id]
		switch {
		case !ok:
			out.Missing = append(out.Missing, id)
		case !rec.Success:
			out.Failed = append(out.Failed, id)
			out.Results[id] = rec.Clone()
		default:
			out.Results[id] = rec.Clone()
		}
	}
	out.Complete = len(out.Missing) == 0 && len(out.Failed) == 0
	return out, nil
}
