package models

import "time"

// TodoStatus is the lifecycle state of a single todo item.
type TodoStatus string

const (
	TodoStatusPending    TodoStatus = "pending"
	TodoStatusInProgress TodoStatus = "in_progress"
	TodoStatusCompleted  TodoStatus = "completed"
	TodoStatusFailed     TodoStatus = "failed"
	TodoStatusSkipped    TodoStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TodoStatus) Valid() bool {
	switch s {
	case TodoStatusPending, TodoStatusInProgress, TodoStatusCompleted, TodoStatusFailed, TodoStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true once the item can no longer change percentage.
func (s TodoStatus) Terminal() bool {
	return s == TodoStatusCompleted || s == TodoStatusFailed
}

// TodoItem is one checklist entry inside a subtask.
//
// ProgressPercentage is 100 exactly when Status is completed. A failed item
// keeps the percentage it had when it failed.
type TodoItem struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	EstimatedDurationMs int64      `json:"estimatedDuration"`
	Status              TodoStatus `json:"status"`
	Dependencies        []string   `json:"dependencies,omitempty"`
	StartTime           *time.Time `json:"startTime,omitempty"`
	CompletionTime      *time.Time `json:"completionTime,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	ProgressPercentage  int        `json:"progressPercentage"`
}

// Clone returns a deep copy of the item.
func (t *TodoItem) Clone() *TodoItem {
	if t == nil {
		return nil
	}
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.CompletionTime != nil {
		ct := *t.CompletionTime
		c.CompletionTime = &ct
	}
	return &c
}

// SubtaskTodoList is the checklist tracked for one subtask.
type SubtaskTodoList struct {
	SubtaskID              string      `json:"subtaskId"`
	Items                  []*TodoItem `json:"todos"`
	TotalItems             int         `json:"totalItems"`
	CompletedItems         int         `json:"completedItems"`
	EstimatedTotalDuration int64       `json:"estimatedTotalDuration"`
	// ActualDuration is set once at least one item has completed.
	ActualDuration *int64    `json:"actualDuration,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// NewSubtaskTodoList builds a list and derives its aggregate fields.
func NewSubtaskTodoList(subtaskID string, items []*TodoItem, createdAt time.Time) *SubtaskTodoList {
	l := &SubtaskTodoList{
		SubtaskID:   subtaskID,
		Items:       items,
		CreatedAt:   createdAt,
		LastUpdated: createdAt,
	}
	l.Recompute()
	return l
}

// Item returns the item with the given ID, or nil.
func (l *SubtaskTodoList) Item(id string) *TodoItem {
	for _, it := range l.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// Recompute derives TotalItems, CompletedItems, EstimatedTotalDuration and
// ActualDuration from the items. ActualDuration sums, over completed items,
// completion minus the later of the item start and the list creation time.
func (l *SubtaskTodoList) Recompute() {
	l.TotalItems = len(l.Items)
	l.CompletedItems = 0
	l.EstimatedTotalDuration = 0

	var actual int64
	var sawCompletion bool
	for _, it := range l.Items {
		l.EstimatedTotalDuration += it.EstimatedDurationMs
		if it.Status != TodoStatusCompleted {
			continue
		}
		l.CompletedItems++
		if it.CompletionTime == nil {
			continue
		}
		start := l.CreatedAt
		if it.StartTime != nil && it.StartTime.After(start) {
			start = *it.StartTime
		}
		if d := it.CompletionTime.Sub(start).Milliseconds(); d > 0 {
			actual += d
		}
		sawCompletion = true
	}

	if sawCompletion {
		l.ActualDuration = &actual
	} else {
		l.ActualDuration = nil
	}
}

// Clone returns a deep copy safe to hand to observers.
func (l *SubtaskTodoList) Clone() *SubtaskTodoList {
	if l == nil {
		return nil
	}
	c := *l
	c.Items = make([]*TodoItem, len(l.Items))
	for i, it := range l.Items {
		c.Items[i] = it.Clone()
	}
	if l.ActualDuration != nil {
		d := *l.ActualDuration
		c.ActualDuration = &d
	}
	return &c
}
