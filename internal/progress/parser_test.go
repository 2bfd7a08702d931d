package progress

import (
	"testing"
	"time"
)

func TestParseAgentResponse_AllForms(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		text    string
		todo    string
		action  ActionType
		value   int
		hasVal  bool
		message string
	}{
		{"checkpoint", "[CHECKPOINT:todo-0:COMPLETED]", "todo-0", ActionCompletion, 0, false, ""},
		{"progress", "[PROGRESS:todo-1:40]", "todo-1", ActionProgress, 40, true, ""},
		{"issue", "[ISSUE:todo-2:rate limited by upstream]", "todo-2", ActionError, 0, false, "rate limited by upstream"},
		{"help", "[HELP:todo-3:which schema version?]", "todo-3", ActionHelp, 0, false, "which schema version?"},
		{"check emoji", "✓ [todo-0] completed", "todo-0", ActionCompletion, 0, false, ""},
		{"cross emoji", "❌ [todo-1] failed: missing credentials", "todo-1", ActionError, 0, false, "missing credentials"},
		{"warning emoji", "⚠️ [todo-2] 75%", "todo-2", ActionProgress, 75, true, ""},
		{"warning emoji without selector", "⚠ [todo-2] 20%", "todo-2", ActionProgress, 20, true, ""},
		{"in progress emoji", "🔄 [todo-4] in progress", "todo-4", ActionProgress, InProgressDefault, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAgentResponse("sub-1", "prefix "+tt.text+" suffix", ts)
			if len(got) != 1 {
				t.Fatalf("ParseAgentResponse(%q) returned %d checkpoints, want 1", tt.text, len(got))
			}
			cp := got[0]
			if cp.SubtaskID != "sub-1" {
				t.Errorf("SubtaskID = %q, want sub-1", cp.SubtaskID)
			}
			if cp.TodoID != tt.todo {
				t.Errorf("TodoID = %q, want %q", cp.TodoID, tt.todo)
			}
			if cp.Action != tt.action {
				t.Errorf("Action = %q, want %q", cp.Action, tt.action)
			}
			if tt.hasVal {
				if cp.Value == nil || *cp.Value != tt.value {
					t.Errorf("Value = %v, want %d", cp.Value, tt.value)
				}
			} else if cp.Value != nil {
				t.Errorf("Value = %d, want nil", *cp.Value)
			}
			if cp.Message != tt.message {
				t.Errorf("Message = %q, want %q", cp.Message, tt.message)
			}
			if !cp.Timestamp.Equal(ts) {
				t.Errorf("Timestamp = %v, want %v", cp.Timestamp, ts)
			}
			if cp.RawMatch == "" {
				t.Error("RawMatch is empty")
			}
		})
	}
}

func TestParseAgentResponse_Order(t *testing.T) {
	text := `Starting work.
🔄 [todo-1] in progress
[CHECKPOINT:todo-0:COMPLETED]
Some notes here.
[PROGRESS:todo-1:80]
✓ [todo-1] completed`

	got := ParseAgentResponse("s", text, time.Now())
	want := []struct {
		todo   string
		action ActionType
	}{
		{"todo-1", ActionProgress},
		{"todo-0", ActionCompletion},
		{"todo-1", ActionProgress},
		{"todo-1", ActionCompletion},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d checkpoints, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].TodoID != w.todo || got[i].Action != w.action {
			t.Errorf("checkpoint %d = (%s, %s), want (%s, %s)", i, got[i].TodoID, got[i].Action, w.todo, w.action)
		}
	}
}

func TestParseAgentResponse_Malformed(t *testing.T) {
	text := "[PROGRESS:todo-1:lots] [CHECKPOINT:todo-2:DONE] [ISSUE:todo-3] plain text"

	if got := ParseAgentResponse("s", text, time.Now()); len(got) != 0 {
		t.Errorf("ParseAgentResponse returned %d checkpoints for malformed input, want 0", len(got))
	}
	if n := CountMalformed(text); n != 3 {
		t.Errorf("CountMalformed = %d, want 3", n)
	}
}

func TestParseAgentResponse_Empty(t *testing.T) {
	if got := ParseAgentResponse("s", "", time.Now()); got != nil {
		t.Errorf("ParseAgentResponse(\"\") = %v, want nil", got)
	}
}
