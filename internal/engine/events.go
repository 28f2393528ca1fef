package engine

import "sync"

// EventType identifies a scheduler progress event.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventSplitStart    EventType = "split_start"
	EventSplitComplete EventType = "split_complete"
	EventSplitSkipped  EventType = "split_skipped"
	EventRunComplete   EventType = "run_complete"
)

// ProgressEvent is a best-effort progress update. Done counts completed
// splits at emission time; under concurrency the ordering across splits is
// approximate by design.
type ProgressEvent struct {
	EventType  EventType
	Dataset    string
	SplitID    int
	Done       int
	Total      int
	DurationMs int64
	Note       string
}

// ProgressListener receives progress events. Listeners must be fast; they
// run on the worker goroutine that completed the split.
type ProgressListener func(ProgressEvent)

// notifier fans events out to registered listeners.
type notifier struct {
	mu        sync.Mutex
	listeners []ProgressListener
}

func (n *notifier) on(l ProgressListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) emit(ev ProgressEvent) {
	n.mu.Lock()
	listeners := make([]ProgressListener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
