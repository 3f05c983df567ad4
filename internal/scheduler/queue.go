package scheduler

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type eventKind int

const (
	evSchedule eventKind = iota + 1
	evFlush
	evFlushAll
	evTimer
	evDone
	evRetry
	evHold
	evRelease
	evAbandon
	evState
	evWaitIdle
)

// event is one unit of work for the Run loop.
type event struct {
	kind     eventKind
	title    string
	value    decimal.Decimal
	debounce time.Duration
	gen      uint64 // timer generation, evTimer only

	// write completion, evDone only
	confirmed decimal.Decimal
	err       error

	state chan PendingWrite // evState reply
	idle  chan struct{}     // evWaitIdle, closed once idle
	done  chan struct{}     // closed once processed; nil for internal events
}

// eventQueue is a thread-safe unbounded FIFO.
//
// Timer callbacks and write goroutines enqueue from their own goroutines;
// only the Run loop dequeues. A buffered signal channel of size 1 coalesces
// wakeups so the loop can wait with select on ctx.Done().
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds e to the back of the queue. Returns false once closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}
	e := q.events[0]
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns the wakeup channel. It is closed when the queue closes.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes the loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
