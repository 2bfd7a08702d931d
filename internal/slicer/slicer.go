// Package slicer decomposes a prompt into dependency-linked subtasks.
package slicer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// typeDurations are the per-type execution estimates.
var typeDurations = map[models.SubtaskType]time.Duration{
	models.SubtaskTypeResearch:   60 * time.Second,
	models.SubtaskTypeAnalysis:   45 * time.Second,
	models.SubtaskTypeCreation:   90 * time.Second,
	models.SubtaskTypeValidation: 30 * time.Second,
}

// phaseDescriptions fill subtasks that have no prompt text of their own.
var phaseDescriptions = map[models.SubtaskType]string{
	models.SubtaskTypeResearch:   "Gather the background information needed for",
	models.SubtaskTypeAnalysis:   "Work through the details of",
	models.SubtaskTypeCreation:   "Produce the deliverable for",
	models.SubtaskTypeValidation: "Review and validate the results of",
}

// EstimateDuration returns the execution estimate for a subtask type.
// Unknown types use the ANALYSIS estimate.
func EstimateDuration(t models.SubtaskType) time.Duration {
	if d, ok := typeDurations[t]; ok {
		return d
	}
	return typeDurations[models.SubtaskTypeAnalysis]
}

// Slicer turns prompts into subtasks.
type Slicer struct {
	analyzer *analyze.Analyzer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Slicer.
type Option func(*Slicer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Slicer) { s.logger = logging.OrNop(l) }
}

// WithClock overrides the time source used for subtask timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Slicer) { s.now = now }
}

// WithIDGenerator overrides subtask ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Slicer) { s.newID = gen }
}

// New creates a Slicer. A nil analyzer gets one with default thresholds.
func New(analyzer *analyze.Analyzer, opts ...Option) *Slicer {
	if analyzer == nil {
		analyzer = analyze.New(config.Default().Analysis)
	}
	s := &Slicer{
		analyzer: analyzer,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyzer returns the analyzer used by the slicer.
func (s *Slicer) Analyzer() *analyze.Analyzer {
	return s.analyzer
}

// Slice performs fixed-count decomposition into a sequential chain.
//
// The count starts at the analysis' suggested slice count, doubled for fine
// granularity and halved for coarse, capped at MaxSubtasks. A prompt with
// explicit steps gets one subtask per step instead. Each subtask after the
// first holds a BLOCKING dependency on its predecessor.
func (s *Slicer) Slice(prompt string, cfg config.SlicingConfig) []*models.Subtask {
	analysis := s.analyzer.Analyze(prompt)
	steps := analysis.ExplicitSteps
	count := targetCount(analysis.SuggestedSliceCount, len(steps), cfg)

	var parts []string
	stepwise := len(steps) > 0
	if stepwise {
		parts = groupParts(steps, count)
	} else {
		parts = groupParts(analyze.SplitSentences(prompt), count)
	}

	gist := summarize(prompt, 24)
	if gist == "" {
		gist = "the request"
	}

	now := s.now()
	subtasks := make([]*models.Subtask, 0, count)
	for i, part := range parts {
		source := prompt
		if stepwise {
			source = part
		}
		typ := assignType(source, i, len(parts))

		desc := part
		if desc == "" {
			desc = fmt.Sprintf("%s: %s", phaseDescriptions[typ], gist)
		}

		st := &models.Subtask{
			ID:                s.newID(),
			Title:             fmt.Sprintf("%s %d: %s", typeLabel(typ), i+1, summarize(desc, 8)),
			Description:       desc,
			Type:              typ,
			Priority:          chainPriority(i),
			Status:            models.SubtaskStatusPending,
			EstimatedDuration: EstimateDuration(typ),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if i > 0 {
			st.AddDependency(subtasks[i-1].ID, models.DependencyBlocking, "sequential step")
		}
		subtasks = append(subtasks, st)
	}

	s.logger.Debug("slicer: sliced prompt",
		zap.Int("subtasks", len(subtasks)),
		zap.Int("explicit_steps", len(steps)),
		zap.String("granularity", cfg.Granularity),
	)
	return subtasks
}

// targetCount resolves how many subtasks Slice produces.
func targetCount(suggested, steps int, cfg config.SlicingConfig) int {
	count := suggested
	switch cfg.Granularity {
	case config.GranularityFine:
		count *= 2
	case config.GranularityCoarse:
		count /= 2
		if count < 2 {
			count = 2
		}
	}
	if steps >= 2 {
		count = steps
	}
	if cfg.MaxSubtasks > 0 && count > cfg.MaxSubtasks {
		count = cfg.MaxSubtasks
	}
	if count < 1 {
		count = 1
	}
	return count
}

// groupParts distributes items over n parts, keeping order. Earlier parts
// take the remainder. Parts beyond len(items) are empty.
func groupParts(items []string, n int) []string {
	parts := make([]string, n)
	if len(items) == 0 {
		return parts
	}
	if len(items) <= n {
		copy(parts, items)
		return parts
	}
	size, extra := len(items)/n, len(items)%n
	idx := 0
	for i := range parts {
		take := size
		if i < extra {
			take++
		}
		parts[i] = strings.Join(items[idx:idx+take], " ")
		idx += take
	}
	return parts
}

// assignType applies the positional type rule.
func assignType(text string, index, total int) models.SubtaskType {
	switch {
	case index == 0 && analyze.HasTypeKeywords(text, models.SubtaskTypeResearch):
		return models.SubtaskTypeResearch
	case index == total-1 && analyze.HasTypeKeywords(text, models.SubtaskTypeValidation):
		return models.SubtaskTypeValidation
	case analyze.HasTypeKeywords(text, models.SubtaskTypeCreation):
		return models.SubtaskTypeCreation
	default:
		return models.SubtaskTypeAnalysis
	}
}

func chainPriority(index int) models.Priority {
	if index == 0 {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}

func typeLabel(t models.SubtaskType) string {
	s := strings.ToLower(string(t))
	if s == "" {
		return "Task"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// summarize returns at most maxWords words of text, with an ellipsis when cut.
func summarize(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// Decomposition is the outcome of Decompose.
type Decomposition struct {
	Analysis *analyze.PromptAnalysis `json:"analysis"`
	Subtasks []*models.Subtask       `json:"subtasks"`
	// Large is set when the large-prompt path was taken.
	Large *LargeSliceResult `json:"large,omitempty"`
}

// Decompose analyzes prompt and takes the large-prompt path when the
// analysis requires it, the fixed-count path otherwise. It always returns
// at least one subtask.
func (s *Slicer) Decompose(prompt string, cfg config.SlicingConfig) *Decomposition {
	analysis := s.analyzer.Analyze(prompt)
	out := &Decomposition{Analysis: analysis}

	if !analysis.RequiresLargePromptSlicing {
		out.Subtasks = s.Slice(prompt, cfg)
		return out
	}

	s.logger.Info("slicer: large prompt",
		zap.Strings("reasons", analysis.LargePromptReasons),
		zap.String("strategy", cfg.SlicingStrategy),
	)
	out.Large = s.SliceLargePrompt(prompt, cfg, analysis)
	out.Subtasks = out.Large.Subtasks
	return out
}
