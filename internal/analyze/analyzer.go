// Package analyze measures a natural-language prompt: size, structure,
// keyword signals and a complexity score used to size the decomposition.
package analyze

import (
	"crypto/sha256"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const (
	minSliceCount = 2
	maxSliceCount = 20
	topicCount    = 8
)

// ComplexityFactors are the weighted components of the complexity score.
type ComplexityFactors struct {
	Length     float64 `json:"length"`
	Technical  float64 `json:"technical"`
	Sequencing float64 `json:"sequencing"`
	Lists      float64 `json:"lists"`
}

// PromptAnalysis is the result of analysing a prompt.
// Values returned by Analyze are shared with the cache; treat them as read-only.
type PromptAnalysis struct {
	EstimatedTokens int               `json:"estimatedTokens"`
	SentenceCount   int               `json:"sentenceCount"`
	ParagraphCount  int               `json:"paragraphCount"`
	WordCount       int               `json:"wordCount"`
	Complexity      float64           `json:"complexity"`
	Factors         ComplexityFactors `json:"complexityFactors"`

	HasResearch   bool `json:"hasResearchKeywords"`
	HasAnalysis   bool `json:"hasAnalysisKeywords"`
	HasCreation   bool `json:"hasCreationKeywords"`
	HasValidation bool `json:"hasValidationKeywords"`

	HasLists      bool `json:"hasLists"`
	HasHeadings   bool `json:"hasHeadings"`
	HasCodeBlocks bool `json:"hasCodeBlocks"`

	Topics        []string `json:"topics,omitempty"`
	ExplicitSteps []string `json:"explicitSteps,omitempty"`

	SuggestedSliceCount        int      `json:"suggestedSliceCount"`
	RequiresLargePromptSlicing bool     `json:"requiresLargePromptSlicing"`
	LargePromptReasons         []string `json:"largePromptReasons,omitempty"`
}

// HasKeywords reports the keyword flag for a subtask type.
func (a *PromptAnalysis) HasKeywords(t models.SubtaskType) bool {
	switch t {
	case models.SubtaskTypeResearch:
		return a.HasResearch
	case models.SubtaskTypeAnalysis:
		return a.HasAnalysis
	case models.SubtaskTypeCreation:
		return a.HasCreation
	case models.SubtaskTypeValidation:
		return a.HasValidation
	default:
		return false
	}
}

// Analyzer computes PromptAnalysis values and memoises them.
type Analyzer struct {
	thresholds config.AnalysisConfig
	cache      *lru.Cache[[32]byte, *PromptAnalysis]
	logger     *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = logging.OrNop(l) }
}

// New creates an Analyzer with the given large-prompt thresholds.
// Zero thresholds fall back to the defaults.
func New(thresholds config.AnalysisConfig, opts ...Option) *Analyzer {
	def := config.Default().Analysis
	if thresholds.MaxTokens <= 0 {
		thresholds.MaxTokens = def.MaxTokens
	}
	if thresholds.MaxSentences <= 0 {
		thresholds.MaxSentences = def.MaxSentences
	}
	if thresholds.MaxParagraphs <= 0 {
		thresholds.MaxParagraphs = def.MaxParagraphs
	}
	if thresholds.MaxComplexity <= 0 {
		thresholds.MaxComplexity = def.MaxComplexity
	}
	if thresholds.CacheSize <= 0 {
		thresholds.CacheSize = def.CacheSize
	}

	a := &Analyzer{thresholds: thresholds, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	// lru.New only fails on a non-positive size, which is excluded above.
	a.cache, _ = lru.New[[32]byte, *PromptAnalysis](thresholds.CacheSize)
	return a
}

// Thresholds returns the large-prompt thresholds in effect.
func (a *Analyzer) Thresholds() config.AnalysisConfig {
	return a.thresholds
}

// Analyze measures prompt. It never fails; an empty prompt yields zero
// counts and the minimum slice count.
func (a *Analyzer) Analyze(prompt string) *PromptAnalysis {
	key := sha256.Sum256([]byte(prompt))
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	res := a.compute(prompt)
	a.cache.Add(key, res)

	a.logger.Debug("analyze: prompt measured",
		zap.Int("tokens", res.EstimatedTokens),
		zap.Int("sentences", res.SentenceCount),
		zap.Int("paragraphs", res.ParagraphCount),
		zap.Float64("complexity", res.Complexity),
		zap.Int("slices", res.SuggestedSliceCount),
		zap.Bool("large", res.RequiresLargePromptSlicing),
	)
	return res
}

func (a *Analyzer) compute(prompt string) *PromptAnalysis {
	sentences := SplitSentences(prompt)
	words := Words(prompt)
	listLines, lines := countListLines(prompt)

	res := &PromptAnalysis{
		EstimatedTokens: EstimateTokens(prompt),
		SentenceCount:   len(sentences),
		ParagraphCount:  len(SplitParagraphs(prompt)),
		WordCount:       len(words),

		HasResearch:   HasTypeKeywords(prompt, models.SubtaskTypeResearch),
		HasAnalysis:   HasTypeKeywords(prompt, models.SubtaskTypeAnalysis),
		HasCreation:   HasTypeKeywords(prompt, models.SubtaskTypeCreation),
		HasValidation: HasTypeKeywords(prompt, models.SubtaskTypeValidation),

		HasLists:      listLines > 0,
		HasHeadings:   HasHeadings(prompt),
		HasCodeBlocks: strings.Contains(prompt, "```"),

		Topics:        ExtractTopics(prompt, topicCount),
		ExplicitSteps: ExtractSteps(prompt),
	}

	res.Factors = ComplexityFactors{
		Length:     capOne(float64(res.EstimatedTokens) / 2000),
		Technical:  capOne(ratio(len(technicalPattern.FindAllStringIndex(prompt, -1)), len(words)) * 10),
		Sequencing: capOne(ratio(len(sequencingPattern.FindAllStringIndex(prompt, -1)), len(sentences))),
		Lists:      capOne(ratio(listLines, lines)),
	}
	res.Complexity = capOne(0.3*res.Factors.Length + 0.3*res.Factors.Technical +
		0.2*res.Factors.Sequencing + 0.2*res.Factors.Lists)

	res.SuggestedSliceCount = SuggestedSliceCount(res.EstimatedTokens, res.SentenceCount, res.Complexity)

	t := a.thresholds
	if res.EstimatedTokens > t.MaxTokens {
		res.LargePromptReasons = append(res.LargePromptReasons, "tokens")
	}
	if res.SentenceCount > t.MaxSentences {
		res.LargePromptReasons = append(res.LargePromptReasons, "sentences")
	}
	if res.ParagraphCount > t.MaxParagraphs {
		res.LargePromptReasons = append(res.LargePromptReasons, "paragraphs")
	}
	if res.Complexity > t.MaxComplexity {
		res.LargePromptReasons = append(res.LargePromptReasons, "complexity")
	}
	res.RequiresLargePromptSlicing = len(res.LargePromptReasons) > 0

	return res
}

// SuggestedSliceCount returns
// clamp(2, 20, ceil(ceil(tokens/1000 + sentences/20) * (1 + complexity))).
func SuggestedSliceCount(tokens, sentences int, complexity float64) int {
	base := math.Ceil(float64(tokens)/1000 + float64(sentences)/20)
	n := int(math.Ceil(base * (1 + complexity)))
	return clamp(n, minSliceCount, maxSliceCount)
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func capOne(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
