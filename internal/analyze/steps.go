package analyze

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberedLineRe = regexp.MustCompile(`(?im)^\s*(?:step\s+)?(\d{1,3})[.):]\s+(.+?)\s*$`)
	bulletLineRe   = regexp.MustCompile(`(?m)^\s*[-*•+]\s+(.+?)\s*$`)
	inlineNumberRe = regexp.MustCompile(`(?i)(?:^|[\s:;])(?:step\s+)?(\d{1,2})[.):]\s+`)
)

// ExtractSteps returns the explicit steps in text, or nil when fewer than
// two are found. Recognised forms, in order of preference:
//
//	numbered lines ("1. ...", "2) ...", "Step 3: ...")
//	inline numbering ("1. Do A. 2. Do B.") counting up from 1
//	bulleted lines
//	sentences chained by ordering words ("... Then ... Finally ...")
func ExtractSteps(text string) []string {
	if steps := numberedLines(text); len(steps) >= 2 {
		return steps
	}
	if steps := inlineNumbered(text); len(steps) >= 2 {
		return steps
	}
	if steps := bulletLines(text); len(steps) >= 2 {
		return steps
	}
	return sequencedSentences(text)
}

func numberedLines(text string) []string {
	var steps []string
	for _, m := range numberedLineRe.FindAllStringSubmatch(text, -1) {
		steps = append(steps, strings.TrimSpace(m[2]))
	}
	return steps
}

func bulletLines(text string) []string {
	var steps []string
	for _, m := range bulletLineRe.FindAllStringSubmatch(text, -1) {
		steps = append(steps, strings.TrimSpace(m[1]))
	}
	return steps
}

// inlineNumbered splits on markers 1, 2, 3 ... appearing in sequence.
// Numbers out of sequence are treated as ordinary text.
func inlineNumbered(text string) []string {
	locs := inlineNumberRe.FindAllStringSubmatchIndex(text, -1)
	var starts, ends []int
	want := 1
	for _, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n != want {
			continue
		}
		starts = append(starts, loc[0])
		ends = append(ends, loc[1])
		want++
	}
	if len(starts) < 2 {
		return nil
	}

	steps := make([]string, 0, len(starts))
	for i := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if s := strings.TrimSpace(text[ends[i]:end]); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// sequencedSentences treats every sentence as a step when at least two
// sentences carry ordering words.
func sequencedSentences(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) < 2 {
		return nil
	}
	ordered := 0
	for _, s := range sentences {
		if HasSequencing(s) {
			ordered++
		}
	}
	if ordered < 2 && !(ordered == 1 && len(sentences) == 2) {
		return nil
	}
	return sentences
}
