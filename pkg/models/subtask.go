// Package models defines the data types shared by the slicing, dispatch,
// progress and storage layers.
package models

import "time"

// SubtaskType classifies the kind of work a subtask performs.
type SubtaskType string

const (
	// SubtaskTypeResearch gathers information.
	SubtaskTypeResearch SubtaskType = "RESEARCH"
	// SubtaskTypeAnalysis examines or compares material.
	SubtaskTypeAnalysis SubtaskType = "ANALYSIS"
	// SubtaskTypeCreation produces new content.
	SubtaskTypeCreation SubtaskType = "CREATION"
	// SubtaskTypeValidation checks or reviews results.
	SubtaskTypeValidation SubtaskType = "VALIDATION"
)

// Valid returns true if the type is one of the built-in values.
func (t SubtaskType) Valid() bool {
	switch t {
	case SubtaskTypeResearch, SubtaskTypeAnalysis, SubtaskTypeCreation, SubtaskTypeValidation:
		return true
	default:
		return false
	}
}

// SubtaskStatus represents the lifecycle state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not started.
	SubtaskStatusPending SubtaskStatus = "PENDING"
	// SubtaskStatusInProgress indicates an agent is working on the subtask.
	SubtaskStatusInProgress SubtaskStatus = "IN_PROGRESS"
	// SubtaskStatusCompleted indicates the subtask finished successfully.
	SubtaskStatusCompleted SubtaskStatus = "COMPLETED"
	// SubtaskStatusFailed indicates the subtask failed.
	SubtaskStatusFailed SubtaskStatus = "FAILED"
	// SubtaskStatusSkipped indicates the subtask was never dispatched.
	SubtaskStatusSkipped SubtaskStatus = "SKIPPED"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusInProgress, SubtaskStatusCompleted,
		SubtaskStatusFailed, SubtaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that no longer change.
func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskStatusCompleted || s == SubtaskStatusFailed || s == SubtaskStatusSkipped
}

// DependencyKind describes how strongly one subtask relies on another.
type DependencyKind string

const (
	// DependencyBlocking means the dependent may not start until the target completed.
	DependencyBlocking DependencyKind = "BLOCKING"
	// DependencySoft is an ordering hint only.
	DependencySoft DependencyKind = "SOFT"
	// DependencyReference marks shared context without any ordering.
	DependencyReference DependencyKind = "REFERENCE"
)

// Valid returns true if the kind is a known value.
func (k DependencyKind) Valid() bool {
	switch k {
	case DependencyBlocking, DependencySoft, DependencyReference:
		return true
	default:
		return false
	}
}

// Dependency is an edge from a subtask to the subtask it relies on.
type Dependency struct {
	// SubtaskID is the ID of the subtask being depended on.
	SubtaskID string `json:"subtaskId"`
	// Kind is the dependency strength.
	Kind DependencyKind `json:"type"`
	// Description explains the relationship, if any.
	Description string `json:"description,omitempty"`
}

// Subtask is one atomic unit of work produced by slicing a prompt.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// Title is a short label.
	Title string `json:"title"`
	// Description is the full instruction handed to the agent.
	Description string `json:"description"`
	// Type classifies the work.
	Type SubtaskType `json:"type"`
	// Priority orders dispatch within a batch group.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state.
	Status SubtaskStatus `json:"status"`
	// Dependencies lists the subtasks this one relies on.
	Dependencies []Dependency `json:"dependencies,omitempty"`
	// EstimatedDuration is the expected execution time.
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	// ParentWorkflowID is the workflow this subtask belongs to.
	ParentWorkflowID string `json:"parentWorkflowId,omitempty"`
	// CreatedAt is when the subtask was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the subtask last changed.
	UpdatedAt time.Time `json:"updatedAt"`
}

// AddDependency appends a dependency unless an identical edge already exists.
func (s *Subtask) AddDependency(id string, kind DependencyKind, description string) {
	if id == "" || id == s.ID || s.DependsOn(id, kind) {
		return
	}
	s.Dependencies = append(s.Dependencies, Dependency{
		SubtaskID:   id,
		Kind:        kind,
		Description: description,
	})
}

// DependsOn reports whether the subtask has an edge of the given kind to id.
func (s *Subtask) DependsOn(id string, kind DependencyKind) bool {
	for _, d := range s.Dependencies {
		if d.SubtaskID == id && d.Kind == kind {
			return true
		}
	}
	return false
}

// BlockingDependencies returns the IDs of all BLOCKING dependencies.
func (s *Subtask) BlockingDependencies() []string {
	var ids []string
	for _, d := range s.Dependencies {
		if d.Kind == DependencyBlocking {
			ids = append(ids, d.SubtaskID)
		}
	}
	return ids
}

// Clone returns a deep copy of the subtask.
func (s *Subtask) Clone() *Subtask {
	if s == nil {
		return nil
	}
	c := *s
	if s.Dependencies != nil {
		c.Dependencies = make([]Dependency, len(s.Dependencies))
		copy(c.Dependencies, s.Dependencies)
	}
	return &c
}
