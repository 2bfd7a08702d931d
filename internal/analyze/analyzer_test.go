package analyze

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	// Runes, not bytes.
	assert.Equal(t, 1, EstimateTokens("✓✓✓✓"))
}

func TestSuggestedSliceCount(t *testing.T) {
	tests := []struct {
		name       string
		tokens     int
		sentences  int
		complexity float64
		want       int
	}{
		{"empty clamps to minimum", 0, 0, 0, 2},
		{"tokens drive the base", 5000, 0, 0, 5},
		{"sentences add to the base", 1000, 40, 0, 3},
		{"complexity scales", 3000, 0, 0.5, 5},
		{"clamped to maximum", 30000, 0, 0, 20},
		{"fully complex", 5000, 100, 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestedSliceCount(tt.tokens, tt.sentences, tt.complexity))
		})
	}
}

func TestAnalyze_FourStepPrompt(t *testing.T) {
	a := New(config.Default().Analysis)
	res := a.Analyze("Research competitors. Then analyze pricing. Then write a report. Then validate findings.")

	assert.Equal(t, 4, res.SentenceCount)
	assert.Equal(t, 1, res.ParagraphCount)
	assert.True(t, res.HasResearch)
	assert.True(t, res.HasAnalysis)
	assert.True(t, res.HasCreation)
	assert.True(t, res.HasValidation)
	assert.Len(t, res.ExplicitSteps, 4)
	assert.GreaterOrEqual(t, res.SuggestedSliceCount, 2)
	assert.False(t, res.RequiresLargePromptSlicing)
	assert.Greater(t, res.Factors.Sequencing, 0.0)
	assert.LessOrEqual(t, res.Complexity, 1.0)
}

func TestAnalyze_LargePromptThresholds(t *testing.T) {
	paragraphs := make([]string, 12)
	for i := range paragraphs {
		paragraphs[i] = "Summarise the quarterly numbers."
	}
	manyParagraphs := strings.Join(paragraphs, "\n\n")

	sentences := strings.Repeat("Compare one more vendor. ", 60)
	longText := strings.Repeat("word ", 4000)

	tests := []struct {
		name       string
		thresholds config.AnalysisConfig
		prompt     string
		want       bool
		reason     string
	}{
		{"paragraphs", config.Default().Analysis, manyParagraphs, true, "paragraphs"},
		{"sentences", config.Default().Analysis, sentences, true, "sentences"},
		{"tokens", config.Default().Analysis, longText, true, "tokens"},
		{"small prompt", config.Default().Analysis, "Write a haiku.", false, ""},
		{"configurable threshold", config.AnalysisConfig{MaxParagraphs: 20}, manyParagraphs, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.thresholds).Analyze(tt.prompt)
			assert.Equal(t, tt.want, res.RequiresLargePromptSlicing, "reasons: %v", res.LargePromptReasons)
			if tt.reason != "" {
				assert.Contains(t, res.LargePromptReasons, tt.reason)
			}
		})
	}
}

func TestAnalyze_ComplexityIsCapped(t *testing.T) {
	prompt := strings.Repeat("- First deploy the API database architecture, then tune performance and security.\n", 200)
	res := New(config.Default().Analysis).Analyze(prompt)

	assert.LessOrEqual(t, res.Complexity, 1.0)
	assert.Greater(t, res.Complexity, 0.8)
	assert.True(t, res.HasLists)
	assert.Contains(t, res.LargePromptReasons, "complexity")
}

func TestAnalyze_EmptyPrompt(t *testing.T) {
	res := New(config.Default().Analysis).Analyze("")
	require.NotNil(t, res)
	assert.Zero(t, res.EstimatedTokens)
	assert.Zero(t, res.SentenceCount)
	assert.Equal(t, 2, res.SuggestedSliceCount)
	assert.Zero(t, res.Complexity)
}

func TestAnalyze_Cached(t *testing.T) {
	a := New(config.AnalysisConfig{CacheSize: 2})
	first := a.Analyze("Write a poem about autumn.")
	second := a.Analyze("Write a poem about autumn.")
	assert.Same(t, first, second)
}

func TestClassifyChunk(t *testing.T) {
	tests := []struct {
		text string
		want models.SubtaskType
	}{
		{"Investigate the market and write a summary.", models.SubtaskTypeResearch},
		{"Draft the announcement and verify the dates.", models.SubtaskTypeCreation},
		{"Proofread the final copy.", models.SubtaskTypeValidation},
		{"Pricing tiers across regions.", models.SubtaskTypeAnalysis},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyChunk(tt.text), tt.text)
	}
}
