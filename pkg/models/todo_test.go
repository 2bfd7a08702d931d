package models

import (
	"testing"
	"time"
)

func TestSubtaskTodoList_Recompute(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	early := created.Add(-time.Minute)
	late := created.Add(10 * time.Second)
	done1 := created.Add(30 * time.Second)
	done2 := created.Add(40 * time.Second)

	list := NewSubtaskTodoList("sub-1", []*TodoItem{
		// Started before the list existed: counted from CreatedAt.
		{ID: "todo-0", EstimatedDurationMs: 1000, Status: TodoStatusCompleted, ProgressPercentage: 100, StartTime: &early, CompletionTime: &done1},
		// Started after CreatedAt: counted from StartTime.
		{ID: "todo-1", EstimatedDurationMs: 2000, Status: TodoStatusCompleted, ProgressPercentage: 100, StartTime: &late, CompletionTime: &done2},
		{ID: "todo-2", EstimatedDurationMs: 3000, Status: TodoStatusPending},
	}, created)

	if list.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", list.TotalItems)
	}
	if list.CompletedItems != 2 {
		t.Errorf("CompletedItems = %d, want 2", list.CompletedItems)
	}
	if list.EstimatedTotalDuration != 6000 {
		t.Errorf("EstimatedTotalDuration = %d, want 6000", list.EstimatedTotalDuration)
	}
	if list.ActualDuration == nil {
		t.Fatal("ActualDuration not set")
	}
	if want := int64(30000 + 30000); *list.ActualDuration != want {
		t.Errorf("ActualDuration = %d, want %d", *list.ActualDuration, want)
	}
}

func TestSubtaskTodoList_NoCompletionLeavesActualDurationUnset(t *testing.T) {
	list := NewSubtaskTodoList("sub-1", []*TodoItem{{ID: "todo-0", Status: TodoStatusPending}}, time.Now())
	if list.ActualDuration != nil {
		t.Errorf("ActualDuration = %d, want nil", *list.ActualDuration)
	}
}

func TestSubtaskTodoList_CloneIsDeep(t *testing.T) {
	now := time.Now()
	list := NewSubtaskTodoList("sub-1", []*TodoItem{{ID: "todo-0", StartTime: &now, Dependencies: []string{"x"}}}, now)

	c := list.Clone()
	c.Items[0].ProgressPercentage = 40
	c.Items[0].Dependencies[0] = "y"
	*c.Items[0].StartTime = now.Add(time.Hour)

	orig := list.Item("todo-0")
	if orig.ProgressPercentage != 0 || orig.Dependencies[0] != "x" || !orig.StartTime.Equal(now) {
		t.Errorf("Clone shares state with original: %+v", orig)
	}
}

func TestTodoStatus_Terminal(t *testing.T) {
	for _, s := range []TodoStatus{TodoStatusCompleted, TodoStatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TodoStatus{TodoStatusPending, TodoStatusInProgress, TodoStatusSkipped} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
