package analyze

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// TypeKeywords is the single source of truth for subtask type classification.
// Each entry is a word stem; a stem matches any word that starts with it.
var TypeKeywords = map[models.SubtaskType][]string{
	models.SubtaskTypeResearch: {
		"research", "investigat", "explor", "study", "studies", "gather",
		"survey", "discover", "find", "look up", "collect", "source",
	},
	models.SubtaskTypeAnalysis: {
		"analy", "evaluat", "compar", "assess", "examin", "interpret",
		"measur", "breakdown", "break down", "benchmark",
	},
	models.SubtaskTypeCreation: {
		"write", "writing", "creat", "build", "generat", "design", "draft",
		"compos", "produc", "develop", "implement", "author",
	},
	models.SubtaskTypeValidation: {
		"validat", "verif", "test", "check", "review", "confirm", "ensur",
		"proofread", "audit",
	},
}

// technicalKeywords raise the complexity score.
var technicalKeywords = []string{
	"api", "database", "algorithm", "architecture", "integration", "system",
	"framework", "implementation", "performance", "security", "scalab",
	"infrastructure", "deploy", "protocol", "concurren", "schema", "migration",
	"endpoint", "latency", "distributed",
}

// SequencingKeywords mark ordered steps.
var SequencingKeywords = []string{
	"then", "after", "afterwards", "before", "next", "finally", "first",
	"second", "third", "subsequently", "once", "lastly",
}

var (
	typePatterns      = map[models.SubtaskType]*regexp.Regexp{}
	technicalPattern  = stemPattern(technicalKeywords)
	sequencingPattern = wordPattern(SequencingKeywords)
)

func init() {
	for typ, stems := range TypeKeywords {
		typePatterns[typ] = stemPattern(stems)
	}
}

// stemPattern matches any word starting with one of the stems.
func stemPattern(stems []string) *regexp.Regexp {
	quoted := make([]string, len(stems))
	for i, s := range stems {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\w*`)
}

// wordPattern matches whole words only.
func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// HasTypeKeywords reports whether text contains any keyword for typ.
// Unknown types never match.
func HasTypeKeywords(text string, typ models.SubtaskType) bool {
	p, ok := typePatterns[typ]
	return ok && p.MatchString(text)
}

// CountTypeKeywords returns the number of keyword occurrences for typ.
func CountTypeKeywords(text string, typ models.SubtaskType) int {
	p, ok := typePatterns[typ]
	if !ok {
		return 0
	}
	return len(p.FindAllStringIndex(text, -1))
}

// HasSequencing reports whether text contains an ordering word.
func HasSequencing(text string) bool {
	return sequencingPattern.MatchString(text)
}

// ClassifyChunk picks a type by keyword priority: research, creation,
// validation, falling back to analysis.
func ClassifyChunk(text string) models.SubtaskType {
	switch {
	case HasTypeKeywords(text, models.SubtaskTypeResearch):
		return models.SubtaskTypeResearch
	case HasTypeKeywords(text, models.SubtaskTypeCreation):
		return models.SubtaskTypeCreation
	case HasTypeKeywords(text, models.SubtaskTypeValidation):
		return models.SubtaskTypeValidation
	default:
		return models.SubtaskTypeAnalysis
	}
}
