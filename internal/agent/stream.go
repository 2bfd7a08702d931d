package agent

import (
	"strings"
	"sync"
)

// LineBuffer collects streamed text deltas and hands complete lines to emit.
// Lines are passed without their trailing newline.
type LineBuffer struct {
	mu      sync.Mutex
	pending strings.Builder
	emit    func(line string)
}

// NewLineBuffer creates a buffer that calls emit once per complete line.
func NewLineBuffer(emit func(line string)) *LineBuffer {
	return &LineBuffer{emit: emit}
}

// Write appends a delta and emits every line it completes.
func (b *LineBuffer) Write(delta string) {
	b.mu.Lock()
	b.pending.WriteString(delta)
	buf := b.pending.String()
	cut := strings.LastIndexByte(buf, '\n')
	if cut < 0 {
		b.mu.Unlock()
		return
	}
	b.pending.Reset()
	b.pending.WriteString(buf[cut+1:])
	b.mu.Unlock()

	for _, line := range strings.Split(buf[:cut], "\n") {
		b.emit(strings.TrimSuffix(line, "\r"))
	}
}

// Flush emits whatever is left after the last newline.
func (b *LineBuffer) Flush() {
	b.mu.Lock()
	rest := b.pending.String()
	b.pending.Reset()
	b.mu.Unlock()
	if rest != "" {
		b.emit(strings.TrimSuffix(rest, "\r"))
	}
}

// chunk forwards a delta to the request's stream callback, if any.
func (r Request) chunk(text string) {
	if r.OnChunk != nil && text != "" {
		r.OnChunk(text)
	}
}
