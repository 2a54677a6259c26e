// Package realtime fans job change notifications out to subscribers.
package realtime

import (
	"sync"
	"time"
)

// EventType names a kind of job change.
type EventType string

// Event types.
const (
	JobStarted      EventType = "job.started"
	JobUpdated      EventType = "job.updated"
	JobAssigned     EventType = "job.assigned"
	TaskCreated     EventType = "report.task-created"
	FollowUpCreated EventType = "report.follow-up-created"
	MediaCreated    EventType = "report.media-created"
	ReportSubmitted EventType = "report.submitted"
	DraftChanged    EventType = "report.draft-changed"
)

// Event is one change to a job or its committed report.
type Event struct {
	Type   EventType `json:"type"`
	JobID  int64     `json:"job_id"`
	ItemID string    `json:"item_id,omitempty"`
	At     time.Time `json:"at"`
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Hub delivers events to per-job subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// the drop hooks run.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[*subscriber]struct{}
	buffer int

	hookMu sync.RWMutex
	onDrop []func(Event)
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// NewHub creates a hub whose subscriber channels hold buffer events. A
// non-positive buffer uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[int64]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// OnDrop registers a hook that fires when an event is dropped due to a full buffer.
func (h *Hub) OnDrop(fn func(Event)) {
	h.hookMu.Lock()
	h.onDrop = append(h.onDrop, fn)
	h.hookMu.Unlock()
}

// Subscribe returns a channel of events for jobID and a cancel func that
// unsubscribes and closes the channel. Cancel is safe to call more than once.
func (h *Hub) Subscribe(jobID int64) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[jobID], s)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
			close(s.ch)
			h.mu.Unlock()
		})
	}
	return s.ch, cancel
}

// Publish delivers e to every subscriber of e.JobID. A zero At is set to now.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	var dropped int
	h.mu.RLock()
	for s := range h.subs[e.JobID] {
		select {
		case s.ch <- e:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	for range dropped {
		h.runOnDrop(e)
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

func (h *Hub) runOnDrop(e Event) {
	h.hookMu.RLock()
	hooks := make([]func(Event), len(h.onDrop))
	copy(hooks, h.onDrop)
	h.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(e)
	}
}
