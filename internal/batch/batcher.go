// Package batch partitions subtasks into batch groups that can run
// concurrently without violating BLOCKING dependencies.
package batch

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/graph"
	"github.com/ShayCichocki/taskweave/internal/inject"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Injector builds the isolated prompt for one subtask.
type Injector interface {
	InjectContextToSubtaskPrompt(subtask *models.Subtask, scaffold *models.WorkflowScaffold, originalPrompt string, override *config.InjectionConfig) *models.InjectedPrompt
}

var _ Injector = (*inject.Injector)(nil)

// Batcher groups subtasks level by level.
type Batcher struct {
	injector Injector
	logger   *zap.Logger
	newID    func() string
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Batcher) { b.logger = logging.OrNop(l) }
}

// WithIDGenerator overrides group ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(b *Batcher) { b.newID = gen }
}

// New creates a Batcher. A nil injector leaves members without an
// isolated prompt.
func New(injector Injector, opts ...Option) *Batcher {
	b := &Batcher{injector: injector, logger: zap.NewNop(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IdentifyBatchableSubtasks layers subtasks so that every BLOCKING
// dependency of a member sits in an earlier group. Members of a group with
// more than one subtask are marked batchable. Within a group members are
// ordered by priority, keeping input order for ties. Unknown BLOCKING
// dependencies and cycles are errors.
func (b *Batcher) IdentifyBatchableSubtasks(subtasks []*models.Subtask, originalPrompt string, scaffold *models.WorkflowScaffold) ([]*models.BatchGroup, error) {
	g := graph.New()
	g.SetLogger(b.logger)
	if err := g.Build(subtasks); err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	layers, err := g.Layers()
	if err != nil {
		return nil, fmt.Errorf("layer subtasks: %w", err)
	}

	if scaffold == nil {
		scaffold = &models.WorkflowScaffold{}
	}
	if scaffold.TotalSubtasks == 0 {
		s := *scaffold
		s.TotalSubtasks = len(subtasks)
		scaffold = &s
	}

	groups := make([]*models.BatchGroup, 0, len(layers))
	for i, layer := range layers {
		members := make([]*models.Subtask, 0, len(layer))
		for _, id := range layer {
			members = append(members, g.GetSubtask(id))
		}
		sort.SliceStable(members, func(a, c int) bool {
			return members[a].Priority.Rank() < members[c].Priority.Rank()
		})

		group := &models.BatchGroup{GroupID: b.newID(), Index: i}
		for _, st := range members {
			m := &models.BatchMember{
				Subtask:      st,
				BatchGroupID: group.GroupID,
				IsBatchable:  len(members) > 1,
			}
			if b.injector != nil {
				m.Injection = b.injector.InjectContextToSubtaskPrompt(st, scaffold, originalPrompt, nil)
				m.InjectedContext = m.Injection.IsolatedPrompt
			}
			group.Members = append(group.Members, m)
		}
		group.RecomputeEstimate()
		groups = append(groups, group)

		b.logger.Debug("batch: group formed",
			zap.Int("index", i),
			zap.String("group", group.GroupID),
			zap.Strings("subtasks", group.SubtaskIDs()),
			zap.Duration("estimate", group.EstimatedExecutionTime),
		)
	}
	return groups, nil
}
