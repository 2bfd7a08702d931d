package progress

import (
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// Summary is a point-in-time view of one subtask's checklist.
type Summary struct {
	SubtaskID  string `json:"subtaskId"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"inProgress"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	// OverallPercentage is the mean item percentage.
	OverallPercentage float64 `json:"overallPercentage"`
	// EstimatedTimeRemainingMs sums pending estimates and, for in-progress
	// items, the estimate minus elapsed time floored at zero.
	EstimatedTimeRemainingMs int64  `json:"estimatedTimeRemaining"`
	ActualDurationMs         *int64 `json:"actualDuration,omitempty"`
}

// GetProgressSummary summarises the todo list of a subtask.
func (t *Tracker) GetProgressSummary(subtaskID string) (Summary, bool) {
	list, ok := t.Snapshot(subtaskID)
	if !ok {
		return Summary{}, false
	}
	return Summarize(list, t.now().UnixMilli()), true
}

// Summarize computes a Summary for list as of nowMs (Unix milliseconds).
func Summarize(list *models.SubtaskTodoList, nowMs int64) Summary {
	s := Summary{
		SubtaskID:        list.SubtaskID,
		Total:            len(list.Items),
		ActualDurationMs: list.ActualDuration,
	}
	var pctSum int
	for _, it := range list.Items {
		pctSum += it.ProgressPercentage
		switch it.Status {
		case models.TodoStatusPending:
			s.Pending++
			s.EstimatedTimeRemainingMs += it.EstimatedDurationMs
		case models.TodoStatusInProgress:
			s.InProgress++
			started := list.CreatedAt.UnixMilli()
			if it.StartTime != nil {
				started = it.StartTime.UnixMilli()
			}
			if left := it.EstimatedDurationMs - (nowMs - started); left > 0 {
				s.EstimatedTimeRemainingMs += left
			}
		case models.TodoStatusCompleted:
			s.Completed++
		case models.TodoStatusFailed:
			s.Failed++
		case models.TodoStatusSkipped:
			s.Skipped++
		}
	}
	if s.Total > 0 {
		s.OverallPercentage = float64(pctSum) / float64(s.Total)
	}
	return s
}
