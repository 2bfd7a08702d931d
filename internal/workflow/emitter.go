package workflow

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/logging"
)

// DefaultEventBuffer is the emitter channel capacity used by the engine.
const DefaultEventBuffer = 256

// emitTimeout is how long Emit waits on a full channel before dropping.
const emitTimeout = 100 * time.Millisecond

// EventEmitter delivers events on a buffered channel.
// It is safe for concurrent use.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *zap.Logger) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, max(bufferSize, 0)),
		logger: logging.OrNop(logger),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it waits up to emitTimeout before dropping the event.
// Events emitted after Close are dropped.
func (e *EventEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.droppedCount.Add(1)
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	timer := time.NewTimer(emitTimeout)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("workflow: event channel full, dropping event",
				zap.String("type", string(event.Type)),
				zap.Uint64("dropped", count),
			)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events. It is closed by Close.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Calling it twice is a no-op.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
