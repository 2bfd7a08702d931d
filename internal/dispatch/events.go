package dispatch

import (
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// EventType names a dispatch lifecycle event.
type EventType string

const (
	EventBatchStarted     EventType = "batch_started"
	EventBatchCompleted   EventType = "batch_completed"
	EventSubtaskStarted   EventType = "subtask_started"
	EventSubtaskRetrying  EventType = "subtask_retrying"
	EventSubtaskCompleted EventType = "subtask_completed"
	EventSubtaskFailed    EventType = "subtask_failed"
	EventSubtaskRecovered EventType = "subtask_recovered"
	EventSubtaskSkipped   EventType = "subtask_skipped"
	EventSubtaskHalted    EventType = "subtask_halted"
	EventWorkflowHalted   EventType = "workflow_halted"
)

// Event is delivered to the Listener. Result is set on completed and
// failed subtask events, Batch on batch_completed.
type Event struct {
	Type       EventType
	WorkflowID string
	GroupID    string
	GroupIndex int
	SubtaskID  string
	AgentID    string
	Attempt    int
	Message    string
	Result     *models.ExecutionResult
	Batch      *BatchExecutionResult
	Timestamp  time.Time
}

// Listener receives dispatch events. It is called from worker goroutines
// and must be safe for concurrent use.
type Listener func(Event)
