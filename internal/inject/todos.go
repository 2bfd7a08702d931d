package inject

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

const maxTitleLength = 60

// baseTodoDurationMs is the per-todo estimate before the level multiplier.
var baseTodoDurationMs = map[models.SubtaskType]int64{
	models.SubtaskTypeResearch:   120000,
	models.SubtaskTypeAnalysis:   90000,
	models.SubtaskTypeCreation:   150000,
	models.SubtaskTypeValidation: 60000,
}

var levelMultiplier = map[models.ComplexityLevel]float64{
	models.ComplexitySimple:   0.75,
	models.ComplexityModerate: 1.0,
	models.ComplexityComplex:  1.5,
	models.ComplexityExpert:   2.0,
}

// defaultOperations are synthesised when a description has no explicit steps.
var defaultOperations = map[models.SubtaskType][]string{
	models.SubtaskTypeResearch: {
		"Identify information sources",
		"Gather relevant information",
		"Organize findings",
		"Summarize key insights",
	},
	models.SubtaskTypeAnalysis: {
		"Review the input material",
		"Identify key factors",
		"Evaluate and compare options",
		"Summarize conclusions",
	},
	models.SubtaskTypeCreation: {
		"Outline the structure",
		"Draft the core content",
		"Add supporting details",
		"Refine and polish",
		"Finalize the deliverable",
	},
	models.SubtaskTypeValidation: {
		"Define acceptance criteria",
		"Check results against the criteria",
		"Report findings and fixes",
	},
}

var riskTable = table(
	entry("external_api", `\bapis?\b`, `\bendpoints?\b`, `\bthird[- ]party\b`, `\bwebhooks?\b`, `\bexternal service`),
	entry("integration", `\bintegrat\w*`, `\bconnect\w*`, `\bsync\w*`),
	entry("data_migration", `\bmigrat\w*`, `\bbackfill\w*`, `\b(?:import|export)(?:ing)? data\b`, `\bdata transfer\b`),
	entry("security", `\bsecur\w*`, `\bauth\w*`, `\bencrypt\w*`, `\bcredential\w*`, `\bpermission\w*`, `\bvulnerab\w*`),
	entry("performance", `\bperformance\b`, `\blatency\b`, `\boptimi[sz]\w*`, `\bscal(?:e|ing|ability)\b`, `\bthroughput\b`),
)

var (
	externalDataRe = regexp.MustCompile(`(?i)\b(?:research|search|look up|fetch|download|external|internet|web|online|dataset|sources?|survey)\b`)
	iterativeRe    = regexp.MustCompile(`(?i)\b(?:iterat\w*|repeat\w*|each|every|for all|loop|refine|until)\b`)
	predecessorRe  = regexp.MustCompile(`(?i)\b(?:then|after|afterwards|next|subsequently|once)\b`)
	allPreviousRe  = regexp.MustCompile(`(?i)\b(?:finally|lastly|at the end)\b`)
	leadOrderRe    = regexp.MustCompile(`(?i)^(?:(?:and\s+)?then|next|finally|lastly|first(?:ly)?|second(?:ly)?|third(?:ly)?|after that|afterwards|subsequently)\b[,:]?\s*`)
)

// AnalyzeTaskComplexity sizes the work described by text for a subtask type.
func AnalyzeTaskComplexity(text string, typ models.SubtaskType) models.TaskComplexity {
	ops := len(analyze.ExtractSteps(text))
	if ops < 2 {
		ops = len(operationsFor(typ))
	}

	var risks []string
	for _, e := range riskTable {
		if countMatches(text, e.patterns) > 0 {
			risks = append(risks, e.label)
		}
	}

	c := models.TaskComplexity{
		OperationCount:       ops,
		RequiresExternalData: typ == models.SubtaskTypeResearch || externalDataRe.MatchString(text),
		HasIterativeSteps:    iterativeRe.MatchString(text),
		RiskFactors:          risks,
	}

	score := float64(ops) + 2*float64(len(risks)) + float64(len(analyze.Words(text)))/100
	if c.RequiresExternalData {
		score++
	}
	if c.HasIterativeSteps {
		score++
	}
	c.Level = levelFor(score)
	c.EstimatedDurationMs = int64(ops) * todoDurationMs(typ, c.Level)
	return c
}

func levelFor(score float64) models.ComplexityLevel {
	switch {
	case score <= 3:
		return models.ComplexitySimple
	case score <= 6:
		return models.ComplexityModerate
	case score <= 10:
		return models.ComplexityComplex
	default:
		return models.ComplexityExpert
	}
}

func todoDurationMs(typ models.SubtaskType, level models.ComplexityLevel) int64 {
	base, ok := baseTodoDurationMs[typ]
	if !ok {
		base = baseTodoDurationMs[models.SubtaskTypeAnalysis]
	}
	mult, ok := levelMultiplier[level]
	if !ok {
		mult = 1
	}
	return int64(float64(base) * mult)
}

func operationsFor(typ models.SubtaskType) []string {
	if ops, ok := defaultOperations[typ]; ok {
		return ops
	}
	return defaultOperations[models.SubtaskTypeAnalysis]
}

// ExtractAtomicOperations turns the steps in text into todo items with ids
// todo-0 ... todo-N. Without explicit steps the type's default operations
// are used. Ordering words link an item to its predecessor ("then",
// "after", "next") or to every earlier item ("finally"); when no step
// carries an ordering word the items form a linear chain.
func ExtractAtomicOperations(text string, typ models.SubtaskType, complexity models.TaskComplexity) []*models.TodoItem {
	steps := analyze.ExtractSteps(text)
	explicit := len(steps) >= 2
	if !explicit {
		steps = operationsFor(typ)
	}

	duration := todoDurationMs(typ, complexity.Level)
	gist := summarizeWords(text, 20)

	items := make([]*models.TodoItem, len(steps))
	for i, step := range steps {
		desc := step
		if !explicit && gist != "" {
			desc = fmt.Sprintf("%s for: %s", step, gist)
		}
		items[i] = &models.TodoItem{
			ID:                  TodoID(i),
			Title:               humanizeTitle(step),
			Description:         desc,
			EstimatedDurationMs: duration,
			Status:              models.TodoStatusPending,
		}
	}

	linkTodos(items, steps, explicit)
	return items
}

// TodoID returns the id of the i-th todo item.
func TodoID(i int) string {
	return fmt.Sprintf("todo-%d", i)
}

func linkTodos(items []*models.TodoItem, steps []string, explicit bool) {
	ordered := false
	if explicit {
		for _, s := range steps[1:] {
			if predecessorRe.MatchString(s) || allPreviousRe.MatchString(s) {
				ordered = true
				break
			}
		}
	}

	for i := 1; i < len(items); i++ {
		switch {
		case !ordered:
			items[i].Dependencies = []string{items[i-1].ID}
		case allPreviousRe.MatchString(steps[i]):
			for j := 0; j < i; j++ {
				items[i].Dependencies = append(items[i].Dependencies, items[j].ID)
			}
		case predecessorRe.MatchString(steps[i]):
			items[i].Dependencies = []string{items[i-1].ID}
		}
	}
}

// humanizeTitle strips ordering words and trailing punctuation, capitalises
// the first letter and shortens long steps at a word boundary.
func humanizeTitle(step string) string {
	t := strings.TrimSpace(leadOrderRe.ReplaceAllString(strings.TrimSpace(step), ""))
	t = strings.TrimRight(t, ".;:, ")
	if t == "" {
		t = strings.TrimSpace(step)
	}
	if utf8.RuneCountInString(t) > maxTitleLength {
		runes := []rune(t)[:maxTitleLength]
		cut := string(runes)
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		t = cut + "..."
	}
	if t == "" {
		return t
	}
	r, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[size:]
}

func summarizeWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
