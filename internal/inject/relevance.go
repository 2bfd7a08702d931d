package inject

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/taskweave/internal/analyze"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// requirementBoost is added to a sentence's score when it states a requirement.
const requirementBoost = 1.0

// verboseRewrites are applied in order before any truncation happens.
var verboseRewrites = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`\s*\([^()]*\)`), ""},
	{regexp.MustCompile(`(?i)\b(?:please note that|note that|it is important to note that|it should be noted that|as a matter of fact|needless to say)\s*`), ""},
	{regexp.MustCompile(`(?i)\b(?:basically|essentially|actually|really|very|quite|simply|just)\s+`), ""},
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\s*(?:,\s*)?(?:e\.g\.|for example|for instance),?[^.;]*`), ""},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// ScoreSentence scores one sentence for a subtask type: one point per type
// keyword plus requirementBoost when the sentence states a requirement.
func ScoreSentence(sentence string, typ models.SubtaskType) float64 {
	score := float64(analyze.CountTypeKeywords(sentence, typ))
	if requirementRe.MatchString(sentence) {
		score += requirementBoost
	}
	return score
}

// ExtractRelevantContext keeps the sentences of original scoring at least
// threshold for typ, in their original order. When nothing passes, the
// first sentence is kept so the agent still sees the overall goal.
func ExtractRelevantContext(original string, typ models.SubtaskType, threshold float64) string {
	sentences := analyze.SplitSentences(original)
	if len(sentences) == 0 {
		return ""
	}
	var kept []string
	for _, s := range sentences {
		if ScoreSentence(s, typ) >= threshold {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		kept = sentences[:1]
	}
	return strings.Join(kept, " ")
}

// Compress reduces text to at most maxLen characters. Verbose asides are
// removed first; if that is not enough the text is cut at the last sentence
// boundary that fits, or at a word boundary when no sentence fits.
// A non-positive maxLen disables compression.
func Compress(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	reduced := text
	for _, rw := range verboseRewrites {
		reduced = rw.re.ReplaceAllString(reduced, rw.with)
	}
	reduced = strings.TrimSpace(whitespaceRe.ReplaceAllString(reduced, " "))
	if utf8.RuneCountInString(reduced) <= maxLen {
		return reduced
	}
	return truncate(reduced, maxLen)
}

// truncate prefers sentence boundaries over hard cuts.
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	head := string(runes[:maxLen])

	var kept []string
	for _, s := range analyze.SplitSentences(head) {
		if !endsSentence(s) {
			break
		}
		kept = append(kept, s)
	}
	if len(kept) > 0 {
		return strings.Join(kept, " ")
	}

	const ellipsis = "..."
	cut := string(runes[:max(0, maxLen-len(ellipsis))])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + ellipsis
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"')]`)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
