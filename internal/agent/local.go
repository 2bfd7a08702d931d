package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ShayCichocki/taskweave/internal/analyze"
)

// LocalAgentID is the registry name of the offline backend.
const LocalAgentID = "local"

// checklistItemRe matches one rendered checklist line: "- [ ] todo-3: Title (~2m0s) [after todo-2]".
var checklistItemRe = regexp.MustCompile(`(?m)^- \[ \] (todo-\d+): (.*?)(?: \(~[^)]*\))?(?: \[after [^\]]*\])?\s*$`)

// LocalInvoker is an offline backend for dry runs. It walks the prompt's
// TODO CHECKLIST and reports each item with progress markers, so the rest
// of the pipeline can be exercised without credentials.
type LocalInvoker struct {
	latency time.Duration
}

var _ Invoker = (*LocalInvoker)(nil)

// NewLocalInvoker creates an offline backend that waits latency per call.
func NewLocalInvoker(latency time.Duration) *LocalInvoker {
	return &LocalInvoker{latency: latency}
}

// Invoke echoes a completion report for every checklist item.
func (l *LocalInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	if l.latency > 0 {
		timer := time.NewTimer(l.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out strings.Builder
	write := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		out.WriteString(line)
		req.chunk(line)
	}
	write("Dry run for subtask %s.\n", req.SubtaskID)
	for _, m := range checklistItemRe.FindAllStringSubmatch(req.Prompt, -1) {
		id, title := m[1], strings.TrimSpace(m[2])
		write("🔄 [%s] in progress\n", id)
		write("%s: done.\n", title)
		write("[CHECKPOINT:%s:COMPLETED]\n", id)
	}

	text := out.String()
	return &Response{
		AgentID:      req.AgentID,
		Output:       text,
		InputTokens:  int64(analyze.EstimateTokens(req.Prompt)),
		OutputTokens: int64(analyze.EstimateTokens(text)),
	}, nil
}
