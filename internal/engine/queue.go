package engine

import "sync"

// EventKind distinguishes the reconciliation events.
type EventKind int

const (
	// EventBootstrap loads persisted state, checks permissions, and runs the
	// initial fetch. Idempotent; lifecycle re-activation enqueues it again.
	EventBootstrap EventKind = iota + 1
	// EventDirectoryChanged signals that the device directory changed
	// (no payload); the handler re-enumerates and computes the delta.
	EventDirectoryChanged
	// EventRefresh is a user-triggered full refetch.
	EventRefresh
	// EventContactAdded carries a native contact-creation capture with a
	// location fix already in hand.
	EventContactAdded
	// EventChooseMode is the once-only import mode selection.
	EventChooseMode
	// EventAddTag and EventRemoveTag mutate a contact's tag set.
	EventAddTag
	EventRemoveTag
	// EventSetSearch updates the projection search text.
	EventSetSearch
)

func (k EventKind) String() string {
	switch k {
	case EventBootstrap:
		return "bootstrap"
	case EventDirectoryChanged:
		return "directory-changed"
	case EventRefresh:
		return "refresh"
	case EventContactAdded:
		return "contact-added"
	case EventChooseMode:
		return "choose-mode"
	case EventAddTag:
		return "add-tag"
	case EventRemoveTag:
		return "remove-tag"
	case EventSetSearch:
		return "set-search"
	default:
		return "unknown"
	}
}

// Capture is the payload of EventContactAdded. Timestamp is epoch
// milliseconds; zero or negative means "unknown, substitute now".
type Capture struct {
	ID        string
	Latitude  float64
	Longitude float64
	Timestamp int64
}

// TagChange is the payload of EventAddTag/EventRemoveTag.
type TagChange struct {
	ID  string
	Tag string
}

// Event is one unit of work for the single-writer loop.
type Event struct {
	Kind    EventKind
	Capture *Capture
	Tag     *TagChange
	Mode    string
	Search  string

	// LoadOnly makes a bootstrap load records, permissions, and metadata
	// without the initial fetch.
	LoadOnly bool
}

// eventQueue is a thread-safe FIFO queue for reconciliation events.
//
// Thread-safety is provided for external enqueuing (capability signal
// subscriptions, CLI intents) while the engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting in
// the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the payload pointers can be collected before the
	// backing array is reallocated.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether the queue has been closed.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
