package analyze

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	sentenceEnd    = regexp.MustCompile(`[.!?]+(?:["')\]]*)(?:\s+|$)`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	wordRe         = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'_-]*`)
	listLineRe     = regexp.MustCompile(`^\s*(?:[-*•+]|\d{1,3}[.)])\s+\S`)
	headingLineRe  = regexp.MustCompile(`^\s{0,3}#{1,6}\s+\S`)
	listMarkerRe   = regexp.MustCompile(`^\s*(?:[-*•+]|\d{1,3}[.)])\s+`)
	letterRe       = regexp.MustCompile(`\p{L}`)
)

// EstimateTokens approximates a token count as ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// SplitSentences splits text on terminal punctuation. Line breaks between
// list items or headings also end a sentence, and list markers are dropped.
// Pieces without any letter (such as a bare "2.") are discarded.
func SplitSentences(text string) []string {
	var out []string
	for _, line := range splitStructuralLines(text) {
		start := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(line, -1) {
			if s := strings.TrimSpace(line[start:loc[1]]); letterRe.MatchString(s) {
				out = append(out, s)
			}
			start = loc[1]
		}
		if s := strings.TrimSpace(line[start:]); letterRe.MatchString(s) {
			out = append(out, s)
		}
	}
	return out
}

// splitStructuralLines joins soft-wrapped lines of prose but keeps list
// items, headings and blank-line-separated blocks apart.
func splitStructuralLines(text string) []string {
	var blocks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case headingLineRe.MatchString(line):
			flush()
			cur = append(cur, trimmed)
			flush()
		case listLineRe.MatchString(line):
			flush()
			cur = append(cur, listMarkerRe.ReplaceAllString(line, ""))
		default:
			cur = append(cur, trimmed)
		}
	}
	flush()
	return blocks
}

// SplitParagraphs splits on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Words returns the lower-cased words of text.
func Words(text string) []string {
	raw := wordRe.FindAllString(text, -1)
	for i, w := range raw {
		raw[i] = strings.ToLower(w)
	}
	return raw
}

var stopwords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "also": true,
	"been": true, "before": true, "being": true, "below": true, "between": true,
	"both": true, "could": true, "does": true, "doing": true, "each": true,
	"every": true, "finally": true, "first": true, "from": true, "have": true,
	"having": true, "here": true, "into": true, "just": true, "like": true,
	"make": true, "many": true, "more": true, "most": true, "much": true,
	"must": true, "need": true, "next": true, "only": true, "other": true,
	"over": true, "please": true, "same": true, "should": true, "some": true,
	"such": true, "than": true, "that": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "under": true, "until": true, "very": true,
	"want": true, "well": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true, "ensure": true, "using": true, "based": true,
}

// ExtractTopics returns up to n salient terms: words of four or more
// letters that are not stopwords, ordered by frequency and then by first
// appearance.
func ExtractTopics(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	counts := map[string]int{}
	first := map[string]int{}
	for i, w := range Words(text) {
		if utf8.RuneCountInString(w) < 4 || stopwords[w] {
			continue
		}
		if _, seen := first[w]; !seen {
			first[w] = i
		}
		counts[w]++
	}

	topics := make([]string, 0, len(counts))
	for w := range counts {
		topics = append(topics, w)
	}
	sort.Slice(topics, func(i, j int) bool {
		a, b := topics[i], topics[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return first[a] < first[b]
	})
	if len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// countListLines returns list lines and non-empty lines.
func countListLines(text string) (list, total int) {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if listLineRe.MatchString(line) {
			list++
		}
	}
	return list, total
}

// HasHeadings reports whether text contains markdown headings.
func HasHeadings(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if headingLineRe.MatchString(line) {
			return true
		}
	}
	return false
}

// IsHeading reports whether a single line is a markdown heading.
func IsHeading(line string) bool {
	return headingLineRe.MatchString(line)
}
