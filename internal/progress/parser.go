// Package progress turns checkpoint markers in agent output into validated
// todo-list transitions and delivers them to observers.
package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ActionType is the kind of update a checkpoint marker carries.
type ActionType string

const (
	ActionCompletion ActionType = "completion"
	ActionProgress   ActionType = "progress"
	ActionError      ActionType = "error"
	ActionHelp       ActionType = "help"
)

// InProgressDefault is the percentage implied by the in-progress emoji marker.
const InProgressDefault = 50

// ParsedCheckpoint is one recognised marker.
type ParsedCheckpoint struct {
	SubtaskID string     `json:"subtaskId"`
	TodoID    string     `json:"todoId"`
	Action    ActionType `json:"actionType"`
	// Value is the percentage for progress markers.
	Value *int `json:"value,omitempty"`
	// Message is the reason for error markers and the request for help markers.
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RawMatch  string    `json:"rawMatch"`
}

// alternative is one branch of the marker grammar. The branches are joined
// into a single expression and tried left to right at each position.
type alternative struct {
	pattern string
	// groups is the number of capture groups in pattern.
	groups int
	build  func(m []string) (ParsedCheckpoint, bool)
}

const todoIDPattern = `([^:\]\s]+)`

var alternatives = []alternative{
	{
		pattern: `\[CHECKPOINT:` + todoIDPattern + `:COMPLETED\]`,
		groups:  1,
		build: func(m []string) (ParsedCheckpoint, bool) {
			return ParsedCheckpoint{TodoID: m[0], Action: ActionCompletion}, true
		},
	},
	{
		pattern: `\[PROGRESS:` + todoIDPattern + `:(-?\d{1,9})\]`,
		groups:  2,
		build:   percentage,
	},
	{
		pattern: `\[ISSUE:` + todoIDPattern + `:([^\]\n]*)\]`,
		groups:  2,
		build: func(m []string) (ParsedCheckpoint, bool) {
			return ParsedCheckpoint{TodoID: m[0], Action: ActionError, Message: strings.TrimSpace(m[1])}, true
		},
	},
	{
		pattern: `\[HELP:` + todoIDPattern + `:([^\]\n]*)\]`,
		groups:  2,
		build: func(m []string) (ParsedCheckpoint, bool) {
			return ParsedCheckpoint{TodoID: m[0], Action: ActionHelp, Message: strings.TrimSpace(m[1])}, true
		},
	},
	{
		pattern: `✓\s*\[([^\]\s]+)\]\s*completed`,
		groups:  1,
		build: func(m []string) (ParsedCheckpoint, bool) {
			return ParsedCheckpoint{TodoID: m[0], Action: ActionCompletion}, true
		},
	},
	{
		pattern: `❌\s*\[([^\]\s]+)\]\s*failed:[ \t]*([^\n]*)`,
		groups:  2,
		build: func(m []string) (ParsedCheckpoint, bool) {
			return ParsedCheckpoint{TodoID: m[0], Action: ActionError, Message: strings.TrimSpace(m[1])}, true
		},
	},
	{
		pattern: `⚠\x{FE0F}?\s*\[([^\]\s]+)\]\s*(-?\d{1,9})%`,
		groups:  2,
		build:   percentage,
	},
	{
		pattern: `🔄\s*\[([^\]\s]+)\]\s*in progress`,
		groups:  1,
		build: func(m []string) (ParsedCheckpoint, bool) {
			v := InProgressDefault
			return ParsedCheckpoint{TodoID: m[0], Action: ActionProgress, Value: &v}, true
		},
	},
}

func percentage(m []string) (ParsedCheckpoint, bool) {
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return ParsedCheckpoint{}, false
	}
	return ParsedCheckpoint{TodoID: m[0], Action: ActionProgress, Value: &v}, true
}

var (
	markerRe = compileAlternatives()
	// looseMarkerRe finds bracketed markers whether or not they are well formed.
	looseMarkerRe = regexp.MustCompile(`\[(?:CHECKPOINT|PROGRESS|ISSUE|HELP):[^\]\n]*\]`)
)

func compileAlternatives() *regexp.Regexp {
	parts := make([]string, len(alternatives))
	for i, a := range alternatives {
		parts[i] = "(" + a.pattern + ")"
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}

// ParseAgentResponse returns the checkpoints in text in order of appearance.
// Malformed markers are skipped.
func ParseAgentResponse(subtaskID, text string, ts time.Time) []ParsedCheckpoint {
	var out []ParsedCheckpoint
	for _, loc := range markerRe.FindAllStringSubmatchIndex(text, -1) {
		// Group 0 is the whole match; each alternative contributes its own
		// wrapping group followed by its inner groups.
		g := 1
		for _, alt := range alternatives {
			if loc[2*g] >= 0 {
				inner := make([]string, alt.groups)
				for k := 0; k < alt.groups; k++ {
					s, e := loc[2*(g+1+k)], loc[2*(g+1+k)+1]
					if s >= 0 {
						inner[k] = text[s:e]
					}
				}
				if cp, ok := alt.build(inner); ok {
					cp.SubtaskID = subtaskID
					cp.Timestamp = ts
					cp.RawMatch = text[loc[0]:loc[1]]
					out = append(out, cp)
				}
				break
			}
			g += 1 + alt.groups
		}
	}
	return out
}

// CountMalformed returns how many bracketed markers in text are not
// recognised by the grammar.
func CountMalformed(text string) int {
	n := 0
	for _, m := range looseMarkerRe.FindAllString(text, -1) {
		if !markerRe.MatchString(m) {
			n++
		}
	}
	return n
}
