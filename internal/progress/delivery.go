package progress

import "sort"

// Subscribe registers fn for every applied update. The returned function
// removes the subscription. fn runs on the goroutine that applied the
// update and must not block.
func (t *Tracker) Subscribe(fn func(ProgressEvent)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subscribers, id)
		t.subMu.Unlock()
	}
}

// SubscribeBatches registers fn for batched deliveries. With real-time
// updates enabled a batch holds everything buffered for one subtask since
// the previous flush; otherwise every update is delivered as its own batch.
func (t *Tracker) SubscribeBatches(fn func(BatchedProgressEvent)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.batchSubs[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.batchSubs, id)
		t.subMu.Unlock()
	}
}

func (t *Tracker) deliver(ev ProgressEvent) {
	t.subMu.RLock()
	subs := make([]func(ProgressEvent), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}
	t.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}

	if !t.cfg.RealTimeUpdates {
		t.publishBatch(BatchedProgressEvent{
			SubtaskID: ev.SubtaskID,
			Updates:   []ProgressEvent{ev},
			Timestamp: t.now(),
		})
		return
	}

	t.bufMu.Lock()
	t.buffers[ev.SubtaskID] = append(t.buffers[ev.SubtaskID], ev)
	t.bufMu.Unlock()
}

// Flush delivers every non-empty buffer as one batch per subtask.
func (t *Tracker) Flush() {
	t.bufMu.Lock()
	pending := t.buffers
	t.buffers = make(map[string][]ProgressEvent)
	t.bufMu.Unlock()

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := t.now()
	for _, id := range ids {
		t.publishBatch(BatchedProgressEvent{SubtaskID: id, Updates: pending[id], Timestamp: now})
	}
}

func (t *Tracker) flushSubtask(subtaskID string) {
	t.bufMu.Lock()
	updates := t.buffers[subtaskID]
	delete(t.buffers, subtaskID)
	t.bufMu.Unlock()

	if len(updates) > 0 {
		t.publishBatch(BatchedProgressEvent{SubtaskID: subtaskID, Updates: updates, Timestamp: t.now()})
	}
}

func (t *Tracker) publishBatch(b BatchedProgressEvent) {
	t.subMu.RLock()
	subs := make([]func(BatchedProgressEvent), 0, len(t.batchSubs))
	for _, fn := range t.batchSubs {
		subs = append(subs, fn)
	}
	t.subMu.RUnlock()
	for _, fn := range subs {
		fn(b)
	}
}
