package tasks

import (
	"sync"
	"time"
)

// subscriberBuffer bounds how far a slow consumer may lag before events are
// dropped for it. The log itself never drops anything.
const subscriberBuffer = 256

// Event is one progress message, strictly ordered within its task.
type Event struct {
	Seq     int       `json:"seq"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ProgressLog is an append-only event log with live subscribers. Appends
// are monotonic; events are never reordered or rewritten. After Close,
// appends are ignored and subscriber channels are closed.
type ProgressLog struct {
	mu      sync.Mutex
	events  []Event
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

func NewProgressLog() *ProgressLog {
	return &ProgressLog{subs: make(map[int]chan Event)}
}

// Append records one message and fans it out to subscribers. Subscribers
// that cannot keep up miss events on their channel but can recover them
// through Snapshot.
func (l *ProgressLog) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	ev := Event{Seq: len(l.events) + 1, Message: message, Time: time.Now().UTC()}
	l.events = append(l.events, ev)
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Snapshot returns all events with Seq greater than since.
func (l *ProgressLog) Snapshot(since int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if since < 0 {
		since = 0
	}
	if since >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-since)
	copy(out, l.events[since:])
	return out
}

// Len returns the number of appended events.
func (l *ProgressLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Subscribe returns a channel that replays events after since and then
// streams new ones. The channel closes when the log closes. The returned
// cancel function releases the subscription early.
func (l *ProgressLog) Subscribe(since int) (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	for _, ev := range l.events {
		if ev.Seq > since && len(ch) < cap(ch) {
			ch <- ev
		}
	}
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Closed reports whether the log reached its terminal state.
func (l *ProgressLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close ends the stream. Subsequent appends are dropped.
func (l *ProgressLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}
