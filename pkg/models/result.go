package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ExecutionResult is what the dispatcher records for one subtask.
type ExecutionResult struct {
	SubtaskID    string    `json:"subtaskId"`
	AgentID      string    `json:"agentId"`
	Success      bool      `json:"success"`
	Output       string    `json:"output,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	Attempts     int       `json:"attempts"`
	UsedFallback bool      `json:"usedFallback,omitempty"`
	TokensUsed   int64     `json:"tokensUsed"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	DurationMs   int64     `json:"duration"`
}

// StoredSubtaskResult is an ExecutionResult enriched with the metadata
// needed to reassemble a workflow's outputs in dependency order.
type StoredSubtaskResult struct {
	ExecutionResult

	WorkflowID       string   `json:"workflowId"`
	BatchID          string   `json:"batchId"`
	BatchIndex       int      `json:"batchIndex"`
	ExecutionOrder   int64    `json:"executionOrder"`
	DependencyChain  []string `json:"dependencyChain"`
	ParentSubtaskIDs []string `json:"parentSubtaskIds"`
	ChildSubtaskIDs  []string `json:"childSubtaskIds"`
	// InputChain lists the ancestors whose outputs feed this subtask,
	// in topological order.
	InputChain       []string  `json:"inputChain,omitempty"`
	ExecutionLevel   int       `json:"executionLevel"`
	StorageTimestamp time.Time `json:"storageTimestamp"`
	Checksum         string    `json:"checksum"`
}

// ComputeChecksum returns the hex SHA-256 of the record's canonical JSON
// form with the Checksum field blanked.
func (r *StoredSubtaskResult) ComputeChecksum() string {
	c := *r
	c.Checksum = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal sets Checksum from the current field values.
func (r *StoredSubtaskResult) Seal() {
	r.Checksum = r.ComputeChecksum()
}

// VerifyChecksum reports whether the stored checksum matches the fields.
func (r *StoredSubtaskResult) VerifyChecksum() bool {
	return r.Checksum != "" && r.Checksum == r.ComputeChecksum()
}

// Clone returns a deep copy.
func (r *StoredSubtaskResult) Clone() *StoredSubtaskResult {
	if r == nil {
		return nil
	}
	c := *r
	c.DependencyChain = cloneStrings(r.DependencyChain)
	c.ParentSubtaskIDs = cloneStrings(r.ParentSubtaskIDs)
	c.ChildSubtaskIDs = cloneStrings(r.ChildSubtaskIDs)
	c.InputChain = cloneStrings(r.InputChain)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
