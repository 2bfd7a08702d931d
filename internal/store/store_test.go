package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

var storeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sub(id string, deps ...models.Dependency) *models.Subtask {
	return &models.Subtask{ID: id, Title: id, Status: models.SubtaskStatusPending, Dependencies: deps}
}

func blocking(id string) models.Dependency {
	return models.Dependency{SubtaskID: id, Kind: models.DependencyBlocking}
}

func soft(id string) models.Dependency {
	return models.Dependency{SubtaskID: id, Kind: models.DependencySoft}
}

// diamond: a -> b, a -> c, b+c -> d, with a SOFT hint from c to b.
func diamond() []*models.Subtask {
	return []*models.Subtask{
		sub("a"),
		sub("b", blocking("a")),
		sub("c", blocking("a"), soft("b")),
		sub("d", blocking("b"), blocking("c")),
	}
}

func result(id string, ok bool) models.ExecutionResult {
	r := models.ExecutionResult{
		SubtaskID:   id,
		AgentID:     "local",
		Success:     ok,
		Output:      "output of " + id,
		Attempts:    1,
		StartedAt:   storeTime,
		CompletedAt: storeTime.Add(time.Second),
		DurationMs:  1000,
	}
	if !ok {
		r.Output = ""
		r.Error = "boom"
		r.ErrorKind = models.ErrorKindAPI
	}
	return r
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return storeTime })}, opts...)
	s := New(opts...)
	require.NoError(t, s.RegisterWorkflow("wf", diamond()))
	return s
}

func putAll(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	for i, id := range ids {
		_, err := s.Put(result(id, true), BatchPlacement{WorkflowID: "wf", BatchID: "batch-" + id, BatchIndex: i})
		require.NoError(t, err)
	}
}

func TestPut_AssignsMetadata(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a", "b", "c")

	rec, err := s.Put(result("d", true), BatchPlacement{WorkflowID: "wf", BatchID: "batch-2", BatchIndex: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(4), rec.ExecutionOrder)
	assert.Equal(t, 2, rec.ExecutionLevel)
	assert.Equal(t, []string{"a", "b", "c"}, rec.DependencyChain)
	assert.Equal(t, []string{"b", "c"}, rec.ParentSubtaskIDs)
	assert.Equal(t, []string{}, rec.ChildSubtaskIDs)
	assert.Equal(t, []string{"b", "c"}, rec.InputChain)
	assert.Equal(t, storeTime, rec.StorageTimestamp)
	assert.True(t, rec.VerifyChecksum())

	root, err := s.Get("wf", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, root.ExecutionLevel)
	assert.Equal(t, []string{}, root.DependencyChain)
	assert.Equal(t, []string{"b", "c"}, root.ChildSubtaskIDs)
}

func TestPut_SoftDependencyFeedsInputsOnly(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a", "b")

	rec, err := s.Put(result("c", true), BatchPlacement{WorkflowID: "wf", BatchID: "batch-1", BatchIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rec.DependencyChain)
	assert.Equal(t, []string{"a", "b"}, rec.InputChain)
	assert.Equal(t, 1, rec.ExecutionLevel)
}

func TestPut_UnknownWorkflowOrSubtask(t *testing.T) {
	s := newStore(t)

	_, err := s.Put(result("a", true), BatchPlacement{WorkflowID: "other"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(result("zz", true), BatchPlacement{WorkflowID: "wf"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterWorkflow_Errors(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.RegisterWorkflow("wf", diamond()), ErrAlreadyRegistered)

	cyclic := []*models.Subtask{sub("x", blocking("y")), sub("y", blocking("x"))}
	assert.Error(t, s.RegisterWorkflow("cyclic", cyclic))
}

func TestPut_ReplacesEarlierResult(t *testing.T) {
	s := newStore(t)
	_, err := s.Put(result("a", false), BatchPlacement{WorkflowID: "wf"})
	require.NoError(t, err)
	putAll(t, s, "b")
	_, err = s.Put(result("a", true), BatchPlacement{WorkflowID: "wf"})
	require.NoError(t, err)

	list := s.ListByWorkflow("wf")
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].SubtaskID)
	assert.Equal(t, "a", list[1].SubtaskID)
	assert.True(t, list[1].Success)
	assert.Equal(t, int64(3), list[1].ExecutionOrder)
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a")

	rec, err := s.Get("wf", "a")
	require.NoError(t, err)
	rec.Output = "changed"
	rec.ChildSubtaskIDs[0] = "zz"

	again, err := s.Get("wf", "a")
	require.NoError(t, err)
	assert.Equal(t, "output of a", again.Output)
	assert.Equal(t, []string{"b", "c"}, again.ChildSubtaskIDs)

	_, err = s.Get("wf", "b")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInputs_SkipsFailedAndMissing(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a", "b")
	_, err := s.Put(result("c", false), BatchPlacement{WorkflowID: "wf"})
	require.NoError(t, err)

	inputs := s.Inputs("wf", "d")
	require.Len(t, inputs, 1)
	assert.Equal(t, "b", inputs[0].SubtaskID)

	assert.Empty(t, s.Inputs("wf", "a"))
	assert.Nil(t, s.Inputs("missing", "d"))
}

func TestVerifyIntegrity_DetectsMutation(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a", "b", "c")

	rep, err := s.VerifyIntegrity("wf")
	require.NoError(t, err)
	assert.True(t, rep.Valid)
	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, []string{"d"}, rep.Missing)

	s.mu.Lock()
	s.results["wf"]["b"].Output = "tampered"
	s.mu.Unlock()

	rep, err = s.VerifyIntegrity("wf")
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.Equal(t, []string{"b"}, rep.Corrupted)

	_, err = s.VerifyIntegrity("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReintegrationData(t *testing.T) {
	s := newStore(t)
	putAll(t, s, "a", "b")
	_, err := s.Put(result("c", false), BatchPlacement{WorkflowID: "wf"})
	require.NoError(t, err)

	data, err := s.ReintegrationData("wf")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, data.Levels)
	assert.Equal(t, []string{"a", "b", "c", "d"}, data.Order)
	assert.False(t, data.Complete)
	assert.Equal(t, []string{"d"}, data.Missing)
	assert.Equal(t, []string{"c"}, data.Failed)
	assert.Len(t, data.Results, 3)

	putAll(t, s, "c", "d")
	data, err = s.ReintegrationData("wf")
	require.NoError(t, err)
	assert.True(t, data.Complete)
	assert.Empty(t, data.Missing)
	assert.Empty(t, data.Failed)
}

type failingPersister struct {
	saved int
}

func (f *failingPersister) SaveResult(*models.StoredSubtaskResult) error {
	f.saved++
	return errors.New("disk full")
}

func (f *failingPersister) SaveWorkflowState(*models.ExecutionState) error {
	return errors.New("disk full")
}

func TestPut_PersistFailureKeepsMemoryCopy(t *testing.T) {
	p := &failingPersister{}
	s := newStore(t, WithPersister(p))

	rec, err := s.Put(result("a", true), BatchPlacement{WorkflowID: "wf"})
	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, p.saved)

	_, err = s.Get("wf", "a")
	assert.NoError(t, err)

	assert.Error(t, s.SaveState(&models.ExecutionState{WorkflowID: "wf"}))
	assert.NoError(t, New().SaveState(&models.ExecutionState{WorkflowID: "wf"}))
}
