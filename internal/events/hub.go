// Package events fans dispatcher lifecycle events out to API subscribers.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event types published by the dispatcher.
const (
	BlockConstructed = "block.constructed"
	BlockFailed      = "block.failed"
	BlockSkipped     = "block.skipped"
	BlockUpdated     = "block.updated"
	BlockError       = "block.error"
	RequestCoalesced = "request.coalesced"
	ClickCommand     = "click.command"
	SignalReceived   = "signal"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Filter selects events by type. An entry ending in "." matches every type
// under that prefix, so "block." covers all block events. An empty filter
// matches everything.
type Filter []string

// ParseFilter reads a comma separated list such as "block.,signal".
func ParseFilter(s string) Filter {
	var f Filter
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			f = append(f, part)
		}
	}
	return f
}

func (f Filter) Match(eventType string) bool {
	if len(f) == 0 {
		return true
	}
	for _, want := range f {
		if want == eventType {
			return true
		}
		if strings.HasSuffix(want, ".") && strings.HasPrefix(eventType, want) {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub keeps the most recent events for late clients and pushes new ones to
// live subscribers. Publishing never blocks: a full subscriber misses events.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	history ring

	subs      map[int]subscriber
	nextSubID int
	now       func() time.Time
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		history: ring{buf: make([]Event, capacity)},
		subs:    make(map[int]subscriber),
		now:     time.Now,
	}
}

// Publish records an event and delivers it to matching subscribers. data is
// encoded as JSON; nil or unencodable data becomes an empty object.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: h.now().UTC(), Data: payload}
	h.history.push(ev)

	for _, sub := range h.subs {
		if !sub.filter.Match(eventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe returns a live stream of events matching filter and a cancel
// func that closes it. Cancel is idempotent.
func (h *Hub) Subscribe(filter Filter) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = subscriber{ch: ch, filter: filter}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// SnapshotSince returns buffered events after lastID that match filter,
// oldest first.
func (h *Hub) SnapshotSince(lastID int64, filter Filter) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Event
	h.history.each(func(ev Event) {
		if ev.ID > lastID && filter.Match(ev.Type) {
			out = append(out, ev)
		}
	})
	return out
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ring is a fixed-size event history that overwrites its oldest entry.
type ring struct {
	buf   []Event
	start int
	size  int
}

func (r *ring) push(ev Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = ev
		r.size++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) each(fn func(Event)) {
	for i := range r.size {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}
