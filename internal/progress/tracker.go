package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// UpdateMetadata records the item state before an update.
type UpdateMetadata struct {
	RawMatch         string            `json:"rawMatch"`
	PreviousStatus   models.TodoStatus `json:"previousStatus"`
	PreviousProgress int               `json:"previousProgress"`
}

// UpdateData is the payload of an applied update.
type UpdateData struct {
	Percentage   *int           `json:"percentage,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	HelpRequest  string         `json:"helpRequest,omitempty"`
	Metadata     UpdateMetadata `json:"metadata"`
}

// ProgressUpdate describes one applied checkpoint.
type ProgressUpdate struct {
	Type      ActionType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Data      UpdateData `json:"data"`
}

// ProgressEvent is delivered to observers for every applied update.
// TodoList is a snapshot taken right after the update.
type ProgressEvent struct {
	SubtaskID string                  `json:"subtaskId"`
	TodoID    string                  `json:"todoId"`
	Update    ProgressUpdate          `json:"update"`
	TodoList  *models.SubtaskTodoList `json:"todoList"`
}

// BatchedProgressEvent carries every buffered update of one subtask.
type BatchedProgressEvent struct {
	SubtaskID string          `json:"subtaskId"`
	Updates   []ProgressEvent `json:"updates"`
	Timestamp time.Time       `json:"timestamp"`
}

// entry owns one todo list. Its mutex serialises all writes to the list.
type entry struct {
	mu   sync.Mutex
	list *models.SubtaskTodoList
}

// Tracker is the registry of active todo lists.
type Tracker struct {
	cfg    config.ProgressConfig
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	lists map[string]*entry

	subMu       sync.RWMutex
	nextSubID   int
	subscribers map[int]func(ProgressEvent)
	batchSubs   map[int]func(BatchedProgressEvent)

	bufMu   sync.Mutex
	buffers map[string][]ProgressEvent

	rejected atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logging.OrNop(l) }
}

// WithClock overrides the time source used for flush timestamps and summaries.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty registry.
func NewTracker(cfg config.ProgressConfig, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:         cfg,
		logger:      zap.NewNop(),
		now:         time.Now,
		lists:       make(map[string]*entry),
		subscribers: make(map[int]func(ProgressEvent)),
		batchSubs:   make(map[int]func(BatchedProgressEvent)),
		buffers:     make(map[string][]ProgressEvent),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register starts tracking a copy of list, replacing any list already
// registered for the same subtask.
func (t *Tracker) Register(list *models.SubtaskTodoList) {
	if list == nil {
		return
	}
	c := list.Clone()
	c.Recompute()

	t.mu.Lock()
	t.lists[c.SubtaskID] = &entry{list: c}
	t.mu.Unlock()

	t.logger.Debug("progress: registered todo list",
		zap.String("subtask", c.SubtaskID),
		zap.Int("items", c.TotalItems),
	)
}

// Unregister flushes pending updates for a subtask and stops tracking it.
// It returns the final snapshot, or nil if the subtask was not registered.
func (t *Tracker) Unregister(subtaskID string) *models.SubtaskTodoList {
	t.flushSubtask(subtaskID)

	t.mu.Lock()
	e, ok := t.lists[subtaskID]
	delete(t.lists, subtaskID)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list.Clone()
}

// Snapshot returns a copy of the todo list for a subtask.
func (t *Tracker) Snapshot(subtaskID string) (*models.SubtaskTodoList, bool) {
	e := t.get(subtaskID)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list.Clone(), true
}

// RejectedCount returns how many updates were dropped, either by validation
// or because the subtask or todo id was unknown.
func (t *Tracker) RejectedCount() int64 {
	return t.rejected.Load()
}

func (t *Tracker) get(subtaskID string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lists[subtaskID]
}

// ProcessAgentResponse parses text and applies every recognised checkpoint
// to the subtask's todo list, returning the events for applied updates.
// Rejected and unknown updates are logged and dropped.
func (t *Tracker) ProcessAgentResponse(subtaskID, text string, ts time.Time) []ProgressEvent {
	if n := CountMalformed(text); n > 0 {
		t.logger.Debug("progress: malformed markers ignored",
			zap.String("subtask", subtaskID),
			zap.Int("count", n),
		)
	}

	var events []ProgressEvent
	for _, cp := range ParseAgentResponse(subtaskID, text, ts) {
		if ev, ok := t.Apply(cp); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Apply applies one checkpoint. It reports false when the update was
// rejected, unknown, or left the item unchanged.
func (t *Tracker) Apply(cp ParsedCheckpoint) (ProgressEvent, bool) {
	e := t.get(cp.SubtaskID)
	if e == nil {
		t.reject(cp, "unknown subtask")
		return ProgressEvent{}, false
	}

	e.mu.Lock()
	item := e.list.Item(cp.TodoID)
	if item == nil {
		e.mu.Unlock()
		t.reject(cp, "unknown todo")
		return ProgressEvent{}, false
	}

	prev := UpdateMetadata{
		RawMatch:         cp.RawMatch,
		PreviousStatus:   item.Status,
		PreviousProgress: item.ProgressPercentage,
	}
	data, outcome := t.transition(item, cp)
	switch outcome {
	case rejected:
		e.mu.Unlock()
		t.reject(cp, "invalid transition")
		return ProgressEvent{}, false
	case unchanged:
		e.mu.Unlock()
		return ProgressEvent{}, false
	}

	data.Metadata = prev
	if cp.Action != ActionHelp {
		e.list.LastUpdated = cp.Timestamp
		e.list.Recompute()
	}
	ev := ProgressEvent{
		SubtaskID: cp.SubtaskID,
		TodoID:    cp.TodoID,
		Update: ProgressUpdate{
			Type:      cp.Action,
			Timestamp: cp.Timestamp,
			Data:      data,
		},
		TodoList: e.list.Clone(),
	}
	e.mu.Unlock()

	t.deliver(ev)
	return ev, true
}

type outcome int

const (
	applied outcome = iota
	unchanged
	rejected
)

// transition mutates item according to cp. The caller holds the entry lock.
func (t *Tracker) transition(item *models.TodoItem, cp ParsedCheckpoint) (UpdateData, outcome) {
	switch cp.Action {
	case ActionCompletion:
		return t.complete(item, cp.Timestamp)

	case ActionProgress:
		if cp.Value == nil {
			return UpdateData{}, rejected
		}
		v := *cp.Value
		if item.Status.Terminal() {
			if v == item.ProgressPercentage {
				return UpdateData{}, unchanged
			}
			return UpdateData{}, rejected
		}
		if t.cfg.EnableProgressValidation {
			if v < 0 || v > 100 || v < item.ProgressPercentage {
				return UpdateData{}, rejected
			}
		} else {
			v = min(max(v, 0), 100)
		}
		if v == 100 {
			return t.complete(item, cp.Timestamp)
		}
		if item.Status == models.TodoStatusPending || item.Status == models.TodoStatusSkipped {
			item.Status = models.TodoStatusInProgress
			ts := cp.Timestamp
			item.StartTime = &ts
		}
		item.ProgressPercentage = v
		return UpdateData{Percentage: &v}, applied

	case ActionError:
		switch item.Status {
		case models.TodoStatusFailed:
			return UpdateData{}, unchanged
		case models.TodoStatusCompleted:
			return UpdateData{}, rejected
		}
		item.Status = models.TodoStatusFailed
		item.ErrorMessage = cp.Message
		return UpdateData{ErrorMessage: cp.Message}, applied

	case ActionHelp:
		return UpdateData{HelpRequest: cp.Message}, applied
	}
	return UpdateData{}, rejected
}

func (t *Tracker) complete(item *models.TodoItem, ts time.Time) (UpdateData, outcome) {
	switch item.Status {
	case models.TodoStatusCompleted:
		return UpdateData{}, unchanged
	case models.TodoStatusFailed:
		return UpdateData{}, rejected
	}
	item.Status = models.TodoStatusCompleted
	item.ProgressPercentage = 100
	item.CompletionTime = &ts
	v := 100
	return UpdateData{Percentage: &v}, applied
}

func (t *Tracker) reject(cp ParsedCheckpoint, reason string) {
	t.rejected.Add(1)
	t.logger.Debug("progress: update dropped",
		zap.String("subtask", cp.SubtaskID),
		zap.String("todo", cp.TodoID),
		zap.String("action", string(cp.Action)),
		zap.String("reason", reason),
		zap.String("raw", cp.RawMatch),
	)
}

// Run flushes buffered updates every FlushInterval until ctx is done, then
// performs a final flush. It returns immediately when real-time buffering
// is disabled.
func (t *Tracker) Run(ctx context.Context) {
	if !t.cfg.RealTimeUpdates {
		return
	}
	interval := t.cfg.FlushInterval()
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Flush()
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}
