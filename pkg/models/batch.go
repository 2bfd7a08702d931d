package models

import "time"

// MemberOverhead is the per-member cost added to a group's estimate.
const MemberOverhead = 2 * time.Second

// BatchMember is a subtask placed in a batch group together with its
// isolated prompt.
type BatchMember struct {
	Subtask         *Subtask        `json:"subtask"`
	BatchGroupID    string          `json:"batchGroupId"`
	IsBatchable     bool            `json:"isBatchable"`
	InjectedContext string          `json:"injectedContext"`
	Injection       *InjectedPrompt `json:"injection,omitempty"`
}

// BatchGroup is a set of subtasks with no BLOCKING edges between them.
type BatchGroup struct {
	GroupID                string         `json:"groupId"`
	Index                  int            `json:"index"`
	Members                []*BatchMember `json:"subtasks"`
	EstimatedExecutionTime time.Duration  `json:"estimatedExecutionTime"`
}

// SubtaskIDs returns member IDs in group order.
func (g *BatchGroup) SubtaskIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.Subtask.ID)
	}
	return ids
}

// RecomputeEstimate sets EstimatedExecutionTime to the longest member
// estimate plus MemberOverhead for each member.
func (g *BatchGroup) RecomputeEstimate() {
	var longest time.Duration
	for _, m := range g.Members {
		if m.Subtask.EstimatedDuration > longest {
			longest = m.Subtask.EstimatedDuration
		}
	}
	g.EstimatedExecutionTime = longest + MemberOverhead*time.Duration(len(g.Members))
}
