// Package inject builds the isolated prompt handed to an agent for one
// subtask: contextual cues from the original request, the relevant part of
// that request, a generated todo checklist and progress-marker instructions.
package inject

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const contextCacheSize = 64

// Injector assembles InjectedPrompts.
type Injector struct {
	cfg      config.InjectionConfig
	contexts *lru.Cache[string, models.ContextMetadata]
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Injector) { i.logger = logging.OrNop(l) }
}

// WithClock overrides the time source used for todo list timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Injector) { i.now = now }
}

// New creates an Injector with default settings cfg.
func New(cfg config.InjectionConfig, opts ...Option) *Injector {
	inj := &Injector{cfg: cfg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(inj)
	}
	inj.contexts, _ = lru.New[string, models.ContextMetadata](contextCacheSize)
	return inj
}

// InjectContextToSubtaskPrompt builds the isolated prompt for subtask.
// override replaces the injector's settings when non-nil. Empty prompts and
// missing agents never fail; the agent id defaults to models.UnassignedAgent.
func (inj *Injector) InjectContextToSubtaskPrompt(subtask *models.Subtask, scaffold *models.WorkflowScaffold, originalPrompt string, override *config.InjectionConfig) *models.InjectedPrompt {
	cfg := inj.cfg
	if override != nil {
		cfg = *override
	}
	if subtask == nil {
		subtask = &models.Subtask{}
	}
	if scaffold == nil {
		scaffold = &models.WorkflowScaffold{}
	}

	// Step A: contextual cues.
	meta := inj.extractContext(originalPrompt)

	// Step B: relevance filtering.
	relevant := ExtractRelevantContext(originalPrompt, subtask.Type, cfg.RelevanceThreshold)

	// Step C: compression.
	combined := relevant
	if cfg.IncludeOriginalPrompt && strings.TrimSpace(originalPrompt) != "" && originalPrompt != relevant {
		combined = strings.TrimSpace(relevant + "\n\nOriginal request: " + originalPrompt)
	}
	compressed := Compress(combined, cfg.MaxContextLength)
	metadata := models.InjectionMetadata{
		OriginalLength:   utf8.RuneCountInString(combined),
		InjectedLength:   utf8.RuneCountInString(compressed),
		CompressionRatio: 1,
	}
	if metadata.OriginalLength > 0 {
		metadata.CompressionRatio = float64(metadata.InjectedLength) / float64(metadata.OriginalLength)
	}

	// Step D: todo generation.
	complexity := AnalyzeTaskComplexity(subtask.Description, subtask.Type)
	items := ExtractAtomicOperations(subtask.Description, subtask.Type, complexity)
	todos := models.NewSubtaskTodoList(subtask.ID, items, inj.now())

	// Step E: progress instructions.
	instructions := ProgressInstructions(items)

	agentID := scaffold.AgentID
	if agentID == "" {
		agentID = models.UnassignedAgent
	}

	out := &models.InjectedPrompt{
		SubtaskID:            subtask.ID,
		AgentID:              agentID,
		Context:              meta,
		RelevantContext:      compressed,
		TodoList:             todos,
		ProgressInstructions: instructions,
		CheckpointMarkers:    CheckpointMarkers(items),
		Complexity:           complexity,
		Metadata:             metadata,
	}
	out.IsolatedPrompt = renderPrompt(cfg, subtask, scaffold, out)

	inj.logger.Debug("inject: prompt assembled",
		zap.String("subtask", subtask.ID),
		zap.String("level", string(complexity.Level)),
		zap.Int("todos", len(items)),
		zap.Float64("compression", metadata.CompressionRatio),
	)
	return out
}

func (inj *Injector) extractContext(prompt string) models.ContextMetadata {
	if meta, ok := inj.contexts.Get(prompt); ok {
		return meta
	}
	meta := ExtractContext(prompt)
	inj.contexts.Add(prompt, meta)
	return meta
}

func renderPrompt(cfg config.InjectionConfig, st *models.Subtask, scaffold *models.WorkflowScaffold, p *models.InjectedPrompt) string {
	var b strings.Builder
	section := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	section(strings.TrimSpace(cfg.CustomPrefix))

	header := "You are completing one subtask of a larger request."
	if scaffold.Name != "" {
		header = fmt.Sprintf("You are completing one subtask of the workflow %q.", scaffold.Name)
	}
	if scaffold.TotalSubtasks > 0 {
		header += fmt.Sprintf(" The workflow has %d subtasks; focus only on this one.", scaffold.TotalSubtasks)
	}
	section(header)

	task := fmt.Sprintf("SUBTASK: %s\nTYPE: %s\n\nINSTRUCTIONS:\n%s", st.Title, st.Type, st.Description)
	section(task)

	var ctx []string
	add := func(label, value string, enabled bool) {
		if enabled && value != "" && value != models.Unspecified {
			ctx = append(ctx, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Tone", p.Context.Tone, cfg.IncludeTone)
	add("Format", p.Context.Format, cfg.IncludeFormat)
	add("Style guide", p.Context.StyleGuide, cfg.IncludeStyleGuide)
	add("Domain", p.Context.Domain, true)
	add("Audience", p.Context.Audience, true)
	for _, c := range p.Context.Constraints {
		ctx = append(ctx, "- Constraint: "+c)
	}
	if len(ctx) > 0 {
		section("CONTEXT:\n" + strings.Join(ctx, "\n"))
	}

	if p.RelevantContext != "" {
		section("RELEVANT CONTEXT:\n" + p.RelevantContext)
	}

	section(Checklist(p.TodoList.Items))
	section(p.ProgressInstructions)
	section(strings.TrimSpace(cfg.CustomSuffix))
	return b.String()
}
