package models

import (
	"sort"
	"time"
)

// ErrorKind classifies a dispatch failure.
type ErrorKind string

const (
	ErrorKindAPI        ErrorKind = "API_ERROR"
	ErrorKindValidation ErrorKind = "VALIDATION_ERROR"
	ErrorKindSystem     ErrorKind = "SYSTEM_ERROR"
	ErrorKindTimeout    ErrorKind = "TIMEOUT_ERROR"
	// ErrorKindRecovery is recorded when a retry or fallback succeeded
	// after an earlier failure.
	ErrorKindRecovery ErrorKind = "RECOVERY"
)

// Retryable reports whether failures of this kind are retried.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindAPI || k == ErrorKindTimeout
}

// SubtaskExecState is the dispatcher-side state of one subtask.
type SubtaskExecState string

const (
	ExecStateQueued    SubtaskExecState = "QUEUED"
	ExecStateRunning   SubtaskExecState = "RUNNING"
	ExecStateRetrying  SubtaskExecState = "RETRYING"
	ExecStateCompleted SubtaskExecState = "COMPLETED"
	ExecStateFailed    SubtaskExecState = "FAILED"
	ExecStateSkipped   SubtaskExecState = "SKIPPED"
	ExecStateHalted    SubtaskExecState = "HALTED"
)

var execTransitions = map[SubtaskExecState][]SubtaskExecState{
	"":                {ExecStateQueued, ExecStateSkipped, ExecStateHalted},
	ExecStateQueued:   {ExecStateRunning, ExecStateSkipped, ExecStateHalted},
	ExecStateRunning:  {ExecStateCompleted, ExecStateRetrying, ExecStateFailed},
	ExecStateRetrying: {ExecStateRunning, ExecStateFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s SubtaskExecState) CanTransition(next SubtaskExecState) bool {
	for _, allowed := range execTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal returns true once the state can no longer change.
func (s SubtaskExecState) Terminal() bool {
	switch s {
	case ExecStateCompleted, ExecStateFailed, ExecStateSkipped, ExecStateHalted:
		return true
	default:
		return false
	}
}

// WorkflowStatus is the overall status of a dispatched workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowHalted    WorkflowStatus = "halted"
)

// ExecutionError is one recorded failure or recovery.
type ExecutionError struct {
	SubtaskID string    `json:"subtaskId"`
	AgentID   string    `json:"agentId,omitempty"`
	Kind      ErrorKind `json:"type"`
	Message   string    `json:"message"`
	Attempt   int       `json:"attempt"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionProgress is the count summary derived from an ExecutionState.
type ExecutionProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`
	Queued     int `json:"queued"`
	Halted     int `json:"halted"`
	Skipped    int `json:"skipped"`
}

// ExecutionState is a point-in-time view of a workflow's dispatch state.
type ExecutionState struct {
	WorkflowID    string                      `json:"workflowId"`
	Status        WorkflowStatus              `json:"status"`
	Running       []string                    `json:"runningSubtasks"`
	Completed     []string                    `json:"completedSubtasks"`
	Failed        []string                    `json:"failedSubtasks"`
	Halted        []string                    `json:"haltedSubtasks"`
	Queued        []string                    `json:"queuedSubtasks"`
	Skipped       []string                    `json:"skippedSubtasks,omitempty"`
	SubtaskStates map[string]SubtaskExecState `json:"subtaskStates"`
	RetryCounts   map[string]int              `json:"retryAttempts"`
	Errors        []ExecutionError            `json:"errors,omitempty"`
	HaltReason    string                      `json:"haltReason,omitempty"`
	Progress      ExecutionProgress           `json:"progress"`
	StartedAt     time.Time                   `json:"startedAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

// SortedKeys returns the keys of a set in lexical order.
func SortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
