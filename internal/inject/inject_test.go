package inject

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

func TestExtractContext(t *testing.T) {
	prompt := "Write a blog post in a friendly tone for non-technical readers. Use markdown. " +
		"Follow the APA style. It must be under 800 words. Include examples such as pricing tiers."

	meta := ExtractContext(prompt)
	assert.Equal(t, "friendly", meta.Tone)
	assert.Equal(t, "markdown", meta.Format)
	assert.Equal(t, "APA", meta.StyleGuide)
	assert.Equal(t, "finance", meta.Domain)
	assert.Equal(t, "non-technical readers", meta.Audience)
	assert.Equal(t, []string{"It must be under 800 words."}, meta.Constraints)
	assert.Equal(t, []string{"Include examples such as pricing tiers."}, meta.Examples)
}

func TestExtractContext_Unspecified(t *testing.T) {
	meta := ExtractContext("")
	assert.Equal(t, models.Unspecified, meta.Tone)
	assert.Equal(t, models.Unspecified, meta.Format)
	assert.Equal(t, models.Unspecified, meta.StyleGuide)
	assert.Equal(t, models.Unspecified, meta.Domain)
	assert.Equal(t, models.Unspecified, meta.Audience)
	assert.Empty(t, meta.Constraints)
	assert.Empty(t, meta.Examples)
}

func TestExtractRelevantContext(t *testing.T) {
	prompt := "Research market size. Buy coffee. The report must cite sources."

	assert.Equal(t, "Research market size. The report must cite sources.",
		ExtractRelevantContext(prompt, models.SubtaskTypeResearch, 1))
	assert.Equal(t, "The report must cite sources.",
		ExtractRelevantContext(prompt, models.SubtaskTypeCreation, 1))
	assert.Equal(t, "Hello there.",
		ExtractRelevantContext("Hello there. Nice day.", models.SubtaskTypeValidation, 1))
	assert.Empty(t, ExtractRelevantContext("", models.SubtaskTypeAnalysis, 1))
}

func TestCompress(t *testing.T) {
	t.Run("fits unchanged", func(t *testing.T) {
		assert.Equal(t, "short", Compress("short", 10))
		assert.Equal(t, "anything", Compress("anything", 0))
	})

	t.Run("verbose removal first", func(t *testing.T) {
		got := Compress("Please note that the export (which runs nightly) is very slow.", 45)
		assert.Equal(t, "the export is slow.", got)
	})

	t.Run("sentence boundary", func(t *testing.T) {
		got := Compress("Alpha beta gamma. Delta epsilon zeta. Eta theta iota.", 40)
		assert.Equal(t, "Alpha beta gamma. Delta epsilon zeta.", got)
	})

	t.Run("hard cut", func(t *testing.T) {
		got := Compress("supercalifragilistic expialidocious words", 20)
		assert.LessOrEqual(t, len(got), 20)
		assert.True(t, strings.HasSuffix(got, "..."))
	})
}

func TestAnalyzeTaskComplexity(t *testing.T) {
	c := AnalyzeTaskComplexity("Integrate the payment API and migrate customer data securely", models.SubtaskTypeCreation)

	assert.Equal(t, 5, c.OperationCount)
	assert.Equal(t, []string{"external_api", "integration", "data_migration", "security"}, c.RiskFactors)
	assert.Equal(t, models.ComplexityExpert, c.Level)
	assert.Equal(t, int64(5*150000*2), c.EstimatedDurationMs)
	assert.False(t, c.HasIterativeSteps)

	simple := AnalyzeTaskComplexity("Check it.", models.SubtaskTypeValidation)
	assert.Equal(t, 3, simple.OperationCount)
	assert.Equal(t, models.ComplexityModerate, simple.Level)

	research := AnalyzeTaskComplexity("Look at it.", models.SubtaskTypeResearch)
	assert.True(t, research.RequiresExternalData)
}

func TestExtractAtomicOperations_NumberedSteps(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("%d. Process batch %d of the ledger", i, i))
	}
	text := strings.Join(lines, "\n")

	items := ExtractAtomicOperations(text, models.SubtaskTypeAnalysis, AnalyzeTaskComplexity(text, models.SubtaskTypeAnalysis))

	require.GreaterOrEqual(t, len(items), 7)
	assert.Len(t, items, 10)
	for i, it := range items {
		assert.Equal(t, fmt.Sprintf("todo-%d", i), it.ID)
		assert.Equal(t, models.TodoStatusPending, it.Status)
		assert.Positive(t, it.EstimatedDurationMs)
		if i == 0 {
			assert.Empty(t, it.Dependencies)
		} else {
			assert.Equal(t, []string{items[i-1].ID}, it.Dependencies)
		}
	}
	assert.Equal(t, "Process batch 1 of the ledger", items[0].Title)
}

func TestExtractAtomicOperations_OrderingWords(t *testing.T) {
	text := "First, gather requirements. Then draft the plan. Finally, review everything."
	items := ExtractAtomicOperations(text, models.SubtaskTypeCreation, models.TaskComplexity{Level: models.ComplexityModerate})

	require.Len(t, items, 3)
	assert.Equal(t, "Gather requirements", items[0].Title)
	assert.Equal(t, "Draft the plan", items[1].Title)
	assert.Equal(t, "Review everything", items[2].Title)
	assert.Empty(t, items[0].Dependencies)
	assert.Equal(t, []string{"todo-0"}, items[1].Dependencies)
	assert.Equal(t, []string{"todo-0", "todo-1"}, items[2].Dependencies)
	assert.Equal(t, int64(150000), items[0].EstimatedDurationMs)
}

func TestExtractAtomicOperations_DefaultOperations(t *testing.T) {
	items := ExtractAtomicOperations("Summarize the discussion.", models.SubtaskTypeValidation,
		models.TaskComplexity{Level: models.ComplexitySimple})

	require.Len(t, items, 3)
	assert.Equal(t, "Define acceptance criteria", items[0].Title)
	assert.Equal(t, "Define acceptance criteria for: Summarize the discussion.", items[0].Description)
	assert.Equal(t, int64(45000), items[0].EstimatedDurationMs)
	assert.Equal(t, []string{"todo-1"}, items[2].Dependencies)
}

func TestInjectContextToSubtaskPrompt(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inj := New(config.Default().Injection, WithClock(func() time.Time { return created }))

	st := &models.Subtask{
		ID:          "st-1",
		Title:       "Creation 1: Draft the launch email",
		Description: "1. Outline the key points\n2. Write the email body\n3. Add a call to action",
		Type:        models.SubtaskTypeCreation,
	}
	scaffold := &models.WorkflowScaffold{WorkflowID: "wf-1", Name: "launch", TotalSubtasks: 3}
	prompt := "Write a launch email in a formal tone for our customers. It must stay under 200 words."

	out := inj.InjectContextToSubtaskPrompt(st, scaffold, prompt, nil)

	assert.Equal(t, "st-1", out.SubtaskID)
	assert.Equal(t, models.UnassignedAgent, out.AgentID)
	assert.Equal(t, "formal", out.Context.Tone)
	require.NotNil(t, out.TodoList)
	assert.Equal(t, "st-1", out.TodoList.SubtaskID)
	assert.Equal(t, 3, out.TodoList.TotalItems)
	assert.Equal(t, created, out.TodoList.CreatedAt)
	assert.Equal(t, []string{
		"[CHECKPOINT:todo-0:COMPLETED]",
		"[CHECKPOINT:todo-1:COMPLETED]",
		"[CHECKPOINT:todo-2:COMPLETED]",
	}, out.CheckpointMarkers)

	assert.Contains(t, out.IsolatedPrompt, "TODO CHECKLIST:")
	assert.Contains(t, out.IsolatedPrompt, "- [ ] todo-2: Add a call to action")
	assert.Contains(t, out.IsolatedPrompt, "PROGRESS TRACKING INSTRUCTIONS:")
	assert.Contains(t, out.IsolatedPrompt, "Tone: formal")
	assert.Contains(t, out.IsolatedPrompt, `workflow "launch"`)
	assert.Contains(t, out.ProgressInstructions, "todo-0, todo-1, todo-2")
	assert.InDelta(t, 1.0, out.Metadata.CompressionRatio, 1e-9)
}

func TestInjectContextToSubtaskPrompt_Compression(t *testing.T) {
	cfg := config.Default().Injection
	cfg.MaxContextLength = 60
	inj := New(cfg)

	prompt := strings.Repeat("The service must validate every request payload. ", 6)
	out := inj.InjectContextToSubtaskPrompt(&models.Subtask{ID: "st-1", Type: models.SubtaskTypeValidation}, nil, prompt, nil)

	assert.LessOrEqual(t, out.Metadata.InjectedLength, 60)
	assert.Less(t, out.Metadata.CompressionRatio, 1.0)
	assert.Greater(t, out.Metadata.OriginalLength, out.Metadata.InjectedLength)
}

func TestInjectContextToSubtaskPrompt_Degenerate(t *testing.T) {
	inj := New(config.Default().Injection)
	scaffold := &models.WorkflowScaffold{AgentID: "anthropic"}

	out := inj.InjectContextToSubtaskPrompt(nil, scaffold, "", nil)

	require.NotNil(t, out)
	assert.Equal(t, "anthropic", out.AgentID)
	assert.NotEmpty(t, out.TodoList.Items)
	assert.Contains(t, out.IsolatedPrompt, ChecklistHeader)
	assert.Empty(t, out.RelevantContext)
}

func TestInjectContextToSubtaskPrompt_Override(t *testing.T) {
	inj := New(config.Default().Injection)
	override := config.Default().Injection
	override.IncludeTone = false
	override.CustomPrefix = "SYSTEM NOTE"
	override.CustomSuffix = "END"

	out := inj.InjectContextToSubtaskPrompt(&models.Subtask{ID: "x", Description: "Write it."},
		nil, "Write it in a casual tone.", &override)

	assert.True(t, strings.HasPrefix(out.IsolatedPrompt, "SYSTEM NOTE"))
	assert.True(t, strings.HasSuffix(out.IsolatedPrompt, "END"))
	assert.NotContains(t, out.IsolatedPrompt, "Tone:")
}
