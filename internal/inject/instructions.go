package inject

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ChecklistHeader opens the checklist block in every isolated prompt.
const ChecklistHeader = "TODO CHECKLIST:"

const progressInstructionsTemplate = `PROGRESS TRACKING INSTRUCTIONS:
Work through the checklist in order and report progress inline using these markers exactly:
- [CHECKPOINT:<todoId>:COMPLETED] when an item is finished
- [PROGRESS:<todoId>:<0-100>] to report partial progress on an item
- [ISSUE:<todoId>:<description>] when an item cannot be completed
- [HELP:<todoId>:<question>] when you need input to continue
Short forms are also recognised: "✓ [<todoId>] completed", "❌ [<todoId>] failed: <reason>", "⚠️ [<todoId>] <0-100>%%", "🔄 [<todoId>] in progress".
Valid todo ids: %s
Example: %s`

// CheckpointMarker renders the completion marker for a todo id.
func CheckpointMarker(todoID string) string {
	return fmt.Sprintf("[CHECKPOINT:%s:COMPLETED]", todoID)
}

// CheckpointMarkers renders one completion marker per item.
func CheckpointMarkers(items []*models.TodoItem) []string {
	markers := make([]string, len(items))
	for i, it := range items {
		markers[i] = CheckpointMarker(it.ID)
	}
	return markers
}

// ProgressInstructions describes the marker grammar and lists every todo id.
func ProgressInstructions(items []*models.TodoItem) string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	example := "(no checklist items)"
	if len(items) > 0 {
		example = CheckpointMarker(items[0].ID)
	}
	return fmt.Sprintf(progressInstructionsTemplate, strings.Join(ids, ", "), example)
}

// Checklist renders the TODO CHECKLIST block.
func Checklist(items []*models.TodoItem) string {
	var b strings.Builder
	b.WriteString(ChecklistHeader)
	for _, it := range items {
		fmt.Fprintf(&b, "\n- [ ] %s: %s", it.ID, it.Title)
		if it.EstimatedDurationMs > 0 {
			fmt.Fprintf(&b, " (~%s)", (time.Duration(it.EstimatedDurationMs) * time.Millisecond).Round(time.Second))
		}
		if len(it.Dependencies) > 0 {
			fmt.Fprintf(&b, " [after %s]", strings.Join(it.Dependencies, ", "))
		}
	}
	return b.String()
}
