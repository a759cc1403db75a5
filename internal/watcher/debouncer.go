package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer holds file events for a quiet window and emits one event per
// path. Folding a new event into the pending one for the same path:
//   - CREATE then MODIFY stays CREATE.
//   - CREATE then DELETE or RENAME becomes DELETE. A CREATE can be a save
//     that renamed over a tracked file, so the delete must still reach the
//     index; removing a path that was never indexed is a no-op.
//   - DELETE then CREATE or MODIFY becomes MODIFY, the path was replaced.
//   - Anything else takes the newer operation.
//
// A batch waits on the output channel instead of being dropped; events
// added meanwhile keep coalescing into the next batch.
type Debouncer struct {
	window  time.Duration
	pending map[string]FileEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopCh  chan struct{}
	flushes sync.WaitGroup
	stopped bool
}

// NewDebouncer creates a debouncer that flushes window after the last Add.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 1),
		stopCh:  make(chan struct{}),
	}
}

// Add folds event into the pending set and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if prev, ok := d.pending[event.Path]; ok {
		event = coalesce(prev, event)
	}
	d.pending[event.Path] = event
	d.scheduleFlush()
}

// coalesce returns the single event that stands for prev followed by next.
func coalesce(prev, next FileEvent) FileEvent {
	switch prev.Operation {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			prev.Timestamp = next.Timestamp
			return prev
		case OpDelete, OpRename:
			next.Operation = OpDelete
			return next
		}
	case OpDelete, OpRename:
		if next.Operation == OpCreate || next.Operation == OpModify {
			next.Operation = OpModify
			return next
		}
	}
	return next
}

func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events sorted by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		events = append(events, ev)
	}
	d.pending = make(map[string]FileEvent)
	d.flushes.Add(1)
	d.mu.Unlock()
	defer d.flushes.Done()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	select {
	case d.output <- events:
	case <-d.stopCh:
	}
}

// Pending returns the number of paths waiting for the window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the channel of debounced events.
// Events are emitted as batches after the debounce window.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel once no
// flush is in progress. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
	d.mu.Unlock()

	d.flushes.Wait()
	close(d.output)
}
