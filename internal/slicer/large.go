package slicer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const (
	chunkTopicCount   = 5
	balancedBudgetPct = 0.8
	defaultChunkLimit = 1000
)

var clauseBreak = regexp.MustCompile(`[,;:]\s+`)

// Chunk is one contiguous piece of a large prompt.
type Chunk struct {
	Index     int                `json:"index"`
	Text      string             `json:"text"`
	Tokens    int                `json:"tokens"`
	Heading   string             `json:"heading,omitempty"`
	Topics    []string           `json:"topics,omitempty"`
	Type      models.SubtaskType `json:"type"`
	SubtaskID string             `json:"subtaskId"`
}

// OversizedSegment is text that could not be reduced below the token limit.
type OversizedSegment struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Limit  int    `json:"limit"`
}

// ContextualLink connects two subtasks that share topics.
type ContextualLink struct {
	FromSubtaskID string   `json:"fromSubtaskId"`
	ToSubtaskID   string   `json:"toSubtaskId"`
	SharedTopics  []string `json:"sharedTopics"`
	Strength      float64  `json:"strength"`
}

// SliceStatistics summarises a large-prompt decomposition.
type SliceStatistics struct {
	Strategy            string  `json:"strategy"`
	OriginalTokens      int     `json:"originalTokens"`
	RetainedTokens      int     `json:"retainedTokens"`
	ChunkCount          int     `json:"chunkCount"`
	AverageChunkTokens  float64 `json:"averageChunkTokens"`
	CompressionRatio    float64 `json:"compressionRatio"`
	ContextPreservation float64 `json:"contextPreservation"`
}

// LargeSliceResult is the output of SliceLargePrompt.
type LargeSliceResult struct {
	Subtasks          []*models.Subtask  `json:"subtasks"`
	Chunks            []Chunk            `json:"chunks"`
	OversizedSegments []OversizedSegment `json:"oversizedSegments,omitempty"`
	ContextualLinks   []ContextualLink   `json:"contextualLinks,omitempty"`
	Statistics        SliceStatistics    `json:"statistics"`
}

// SliceLargePrompt chunks a prompt that is too large for fixed-count slicing.
//
// Chunks that still exceed MaxTokensPerSubtask are split by sentence and then
// by clause; whatever remains too large is reported in OversizedSegments and
// does not become a subtask. When no chunk survives, the first oversized
// segment is truncated to the limit and becomes the only subtask. Subtasks
// sharing topics are linked by SOFT dependencies when PreserveContext is
// set. A nil analysis is computed.
func (s *Slicer) SliceLargePrompt(prompt string, cfg config.SlicingConfig, analysis *analyze.PromptAnalysis) *LargeSliceResult {
	if analysis == nil {
		analysis = s.analyzer.Analyze(prompt)
	}
	limit := cfg.MaxTokensPerSubtask
	if limit <= 0 {
		limit = defaultChunkLimit
	}
	strategy := cfg.SlicingStrategy
	if strategy == "" {
		strategy = config.StrategySemantic
	}

	var raw []Chunk
	switch strategy {
	case config.StrategyStructural:
		raw = structuralChunks(prompt, limit)
	case config.StrategyBalanced:
		raw = semanticChunks(prompt, int(math.Max(1, float64(limit)*balancedBudgetPct)))
	default:
		raw = semanticChunks(prompt, limit)
	}

	res := &LargeSliceResult{}
	for _, c := range raw {
		if c.Tokens <= limit {
			res.Chunks = append(res.Chunks, c)
			continue
		}
		pieces, oversized := reduce(c.Text, limit, 0)
		for _, p := range pieces {
			res.Chunks = append(res.Chunks, Chunk{Text: p, Tokens: analyze.EstimateTokens(p), Heading: c.Heading})
		}
		res.OversizedSegments = append(res.OversizedSegments, oversized...)
	}
	if len(res.Chunks) == 0 {
		// Nothing fit: keep the report and work on the head of the prompt.
		text := strings.TrimSpace(prompt)
		if len(res.OversizedSegments) > 0 {
			text = res.OversizedSegments[0].Text
		}
		text = truncateTokens(text, limit)
		res.Chunks = append(res.Chunks, Chunk{Text: text, Tokens: analyze.EstimateTokens(text)})
		s.logger.Warn("slicer: every segment oversized, truncating",
			zap.Int("oversized", len(res.OversizedSegments)),
			zap.Int("limit", limit),
		)
	}

	now := s.now()
	for i := range res.Chunks {
		c := &res.Chunks[i]
		c.Index = i
		c.Topics = analyze.ExtractTopics(c.Text, chunkTopicCount)
		c.Type = analyze.ClassifyChunk(c.Text)

		title := c.Heading
		if title == "" {
			title = summarize(c.Text, 8)
		}
		st := &models.Subtask{
			ID:                s.newID(),
			Title:             fmt.Sprintf("%s %d: %s", typeLabel(c.Type), i+1, title),
			Description:       c.Text,
			Type:              c.Type,
			Priority:          chainPriority(i),
			Status:            models.SubtaskStatusPending,
			EstimatedDuration: EstimateDuration(c.Type),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		c.SubtaskID = st.ID
		res.Subtasks = append(res.Subtasks, st)
	}

	res.ContextualLinks = linkChunks(res.Chunks)
	if cfg.PreserveContext {
		byID := make(map[string]*models.Subtask, len(res.Subtasks))
		for _, st := range res.Subtasks {
			byID[st.ID] = st
		}
		for _, l := range res.ContextualLinks {
			byID[l.FromSubtaskID].AddDependency(l.ToSubtaskID, models.DependencySoft,
				"shared topics: "+strings.Join(l.SharedTopics, ", "))
		}
	}

	res.Statistics = statistics(strategy, analysis.EstimatedTokens, res)

	s.logger.Debug("slicer: large prompt sliced",
		zap.String("strategy", strategy),
		zap.Int("chunks", len(res.Chunks)),
		zap.Int("oversized", len(res.OversizedSegments)),
		zap.Int("links", len(res.ContextualLinks)),
	)
	return res
}

// semanticChunks accumulates sentences until the budget would be exceeded.
// A single sentence above the budget becomes its own chunk.
func semanticChunks(text string, budget int) []Chunk {
	var chunks []Chunk
	for _, piece := range pack(analyze.SplitSentences(text), budget) {
		chunks = append(chunks, Chunk{Text: piece, Tokens: analyze.EstimateTokens(piece)})
	}
	return chunks
}

// structuralChunks splits on headings and blank lines. Sections above the
// budget are chunked semantically.
func structuralChunks(text string, budget int) []Chunk {
	type section struct {
		heading string
		lines   []string
	}
	var sections []section
	cur := section{}
	flush := func() {
		if strings.TrimSpace(strings.Join(cur.lines, "")) != "" {
			sections = append(sections, cur)
		}
		cur = section{heading: cur.heading}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case analyze.IsHeading(line):
			flush()
			cur.heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		case trimmed == "":
			flush()
		default:
			cur.lines = append(cur.lines, line)
		}
	}
	flush()

	var chunks []Chunk
	for _, sec := range sections {
		body := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		tokens := analyze.EstimateTokens(body)
		if tokens <= budget {
			chunks = append(chunks, Chunk{Text: body, Tokens: tokens, Heading: sec.heading})
			continue
		}
		for _, c := range semanticChunks(body, budget) {
			c.Heading = sec.heading
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// reduce splits text at progressively finer boundaries until every piece
// fits. Level 0 splits sentences, level 1 clauses.
func reduce(text string, limit, level int) (pieces []string, oversized []OversizedSegment) {
	var units []string
	switch level {
	case 0:
		units = analyze.SplitSentences(text)
	case 1:
		units = splitClauses(text)
	}
	if len(units) <= 1 && level < 1 {
		return reduce(text, limit, level+1)
	}
	if len(units) <= 1 {
		return nil, []OversizedSegment{{Text: text, Tokens: analyze.EstimateTokens(text), Limit: limit}}
	}

	var run []string
	flush := func() {
		pieces = append(pieces, pack(run, limit)...)
		run = nil
	}
	for _, u := range units {
		if analyze.EstimateTokens(u) > limit {
			flush()
			p, o := reduce(u, limit, level+1)
			pieces = append(pieces, p...)
			oversized = append(oversized, o...)
			continue
		}
		run = append(run, u)
	}
	flush()
	return pieces, oversized
}

// pack joins consecutive units with single spaces, starting a new piece
// whenever the joined text would exceed budget. The estimate is taken on the
// joined text so separators count. A unit above budget stays on its own.
func pack(units []string, budget int) []string {
	var (
		pieces []string
		cur    strings.Builder
	)
	for _, u := range units {
		if cur.Len() > 0 && analyze.EstimateTokens(cur.String()+" "+u) > budget {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

// truncateTokens cuts text to at most limit estimated tokens.
func truncateTokens(text string, limit int) string {
	r := []rune(text)
	if n := limit * 4; len(r) > n {
		return string(r[:n])
	}
	return text
}

func splitClauses(text string) []string {
	var out []string
	start := 0
	for _, loc := range clauseBreak.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// linkChunks links every later chunk to each earlier chunk it shares topics with.
func linkChunks(chunks []Chunk) []ContextualLink {
	var links []ContextualLink
	for j := 1; j < len(chunks); j++ {
		for i := 0; i < j; i++ {
			shared := intersect(chunks[i].Topics, chunks[j].Topics)
			if len(shared) == 0 {
				continue
			}
			smaller := len(chunks[i].Topics)
			if len(chunks[j].Topics) < smaller {
				smaller = len(chunks[j].Topics)
			}
			links = append(links, ContextualLink{
				FromSubtaskID: chunks[j].SubtaskID,
				ToSubtaskID:   chunks[i].SubtaskID,
				SharedTopics:  shared,
				Strength:      float64(len(shared)) / float64(smaller),
			})
		}
	}
	return links
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	for _, s := range a {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}

func statistics(strategy string, originalTokens int, res *LargeSliceResult) SliceStatistics {
	st := SliceStatistics{
		Strategy:       strategy,
		OriginalTokens: originalTokens,
		ChunkCount:     len(res.Chunks),
	}
	for _, c := range res.Chunks {
		st.RetainedTokens += c.Tokens
	}
	if st.ChunkCount > 0 {
		st.AverageChunkTokens = float64(st.RetainedTokens) / float64(st.ChunkCount)
	}
	if originalTokens > 0 {
		st.CompressionRatio = float64(st.RetainedTokens) / float64(originalTokens)
	}
	if n := len(res.Subtasks); n > 0 {
		st.ContextPreservation = math.Min(1, float64(len(res.ContextualLinks))/float64(2*n))
	}
	return st
}
