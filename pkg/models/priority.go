package models

// Priority orders subtasks that are ready at the same time.
type Priority string

const (
	// PriorityHigh subtasks are dispatched first.
	PriorityHigh Priority = "HIGH"
	// PriorityMedium is the default.
	PriorityMedium Priority = "MEDIUM"
	// PriorityLow subtasks are dispatched last.
	PriorityLow Priority = "LOW"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns a sort key where lower values dispatch earlier.
// Unknown priorities rank with MEDIUM.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}
