package workflow

import (
	"time"

	"github.com/ShayCichocki/taskweave/internal/dispatch"
	"github.com/ShayCichocki/taskweave/internal/progress"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// EventType represents the type of workflow event.
type EventType string

const (
	// EventWorkflowStarted is emitted once decomposition and batching succeeded.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowCompleted is emitted when the run ends, whatever its status.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowHalted is emitted when the workflow is halted.
	EventWorkflowHalted = EventType(dispatch.EventWorkflowHalted)
	// EventTodoProgress carries a flushed batch of checklist updates.
	EventTodoProgress EventType = "todo_progress"

	EventBatchStarted     = EventType(dispatch.EventBatchStarted)
	EventBatchCompleted   = EventType(dispatch.EventBatchCompleted)
	EventSubtaskStarted   = EventType(dispatch.EventSubtaskStarted)
	EventSubtaskRetrying  = EventType(dispatch.EventSubtaskRetrying)
	EventSubtaskCompleted = EventType(dispatch.EventSubtaskCompleted)
	EventSubtaskFailed    = EventType(dispatch.EventSubtaskFailed)
	EventSubtaskRecovered = EventType(dispatch.EventSubtaskRecovered)
	EventSubtaskSkipped   = EventType(dispatch.EventSubtaskSkipped)
	EventSubtaskHalted    = EventType(dispatch.EventSubtaskHalted)
)

// Event is emitted by the engine while a workflow runs.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// WorkflowID is the workflow the event belongs to.
	WorkflowID string `json:"workflowId"`
	// GroupID and GroupIndex locate batch and subtask events.
	GroupID    string `json:"groupId,omitempty"`
	GroupIndex int    `json:"groupIndex"`
	// SubtaskID is the related subtask, if any.
	SubtaskID string `json:"subtaskId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	// Message provides additional context about the event.
	Message string `json:"message,omitempty"`
	// Result is set on subtask_completed and subtask_failed.
	Result *models.ExecutionResult `json:"result,omitempty"`
	// Progress is set on todo_progress.
	Progress *progress.Summary `json:"progress,omitempty"`
	// Status is set on workflow_completed.
	Status    models.WorkflowStatus `json:"status,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

func fromDispatch(ev dispatch.Event) Event {
	return Event{
		Type:       EventType(ev.Type),
		WorkflowID: ev.WorkflowID,
		GroupID:    ev.GroupID,
		GroupIndex: ev.GroupIndex,
		SubtaskID:  ev.SubtaskID,
		AgentID:    ev.AgentID,
		Attempt:    ev.Attempt,
		Message:    ev.Message,
		Result:     ev.Result,
		Timestamp:  ev.Timestamp,
	}
}
