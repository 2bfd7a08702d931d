package models

import "testing"

func TestSubtaskType_Valid(t *testing.T) {
	tests := []struct {
		name string
		typ  SubtaskType
		want bool
	}{
		{"research", SubtaskTypeResearch, true},
		{"analysis", SubtaskTypeAnalysis, true},
		{"creation", SubtaskTypeCreation, true},
		{"validation", SubtaskTypeValidation, true},
		{"empty", SubtaskType(""), false},
		{"lower case", SubtaskType("research"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Valid(); got != tt.want {
				t.Errorf("SubtaskType(%q).Valid() = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestSubtask_AddDependency(t *testing.T) {
	s := &Subtask{ID: "b"}

	s.AddDependency("a", DependencyBlocking, "")
	s.AddDependency("a", DependencyBlocking, "duplicate")
	s.AddDependency("a", DependencySoft, "shared topic")
	s.AddDependency("b", DependencyBlocking, "self")
	s.AddDependency("", DependencyBlocking, "empty")

	if len(s.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %d: %+v", len(s.Dependencies), s.Dependencies)
	}
	if got := s.BlockingDependencies(); len(got) != 1 || got[0] != "a" {
		t.Errorf("BlockingDependencies() = %v, want [a]", got)
	}
	if !s.DependsOn("a", DependencySoft) {
		t.Error("expected soft dependency on a")
	}
}

func TestSubtask_Clone(t *testing.T) {
	s := &Subtask{ID: "b"}
	s.AddDependency("a", DependencyBlocking, "")

	c := s.Clone()
	c.Dependencies[0].SubtaskID = "x"

	if s.Dependencies[0].SubtaskID != "a" {
		t.Error("Clone shares dependency storage with the original")
	}
}

func TestPriority_Rank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Error("expected HIGH < MEDIUM < LOW")
	}
	if Priority("urgent").Rank() != PriorityMedium.Rank() {
		t.Error("unknown priority should rank as MEDIUM")
	}
}
