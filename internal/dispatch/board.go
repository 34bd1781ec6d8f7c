package dispatch

import (
	"sync"
	"time"

	"github.com/mattjoyce/barline/internal/block"
)

// SlotStatus is a copy of one slot's observable state.
type SlotStatus struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	State     string         `json:"state"`
	LastError string         `json:"last_error,omitempty"`
	NextDue   *time.Time     `json:"next_due,omitempty"`
	NextIn    time.Duration  `json:"-"`
	Signal    *int           `json:"signal,omitempty"`
	Runs      int            `json:"runs"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
	Widgets   []block.Widget `json:"-"`
}

// Text joins the slot's rendered widgets.
func (s SlotStatus) Text() string {
	var out string
	for i, w := range s.Widgets {
		if i > 0 {
			out += " | "
		}
		out += w.FullText()
	}
	return out
}

// Board is the dispatcher's status, copied out after every loop iteration
// so readers never touch dispatcher state.
type Board struct {
	mu                   sync.RWMutex
	startedAt            time.Time
	slots                []SlotStatus
	pendingConstructions int
	pendingOps           int
}

func newBoard(n int, startedAt time.Time) *Board {
	return &Board{startedAt: startedAt, slots: make([]SlotStatus, n)}
}

func (b *Board) set(slots []SlotStatus, pendingConstructions, pendingOps int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = slots
	b.pendingConstructions = pendingConstructions
	b.pendingOps = pendingOps
}

// Slots returns a copy of every slot's status in id order.
func (b *Board) Slots() []SlotStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]SlotStatus(nil), b.slots...)
}

// Slot returns the status of one block.
func (b *Board) Slot(id int) (SlotStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id < 0 || id >= len(b.slots) {
		return SlotStatus{}, false
	}
	return b.slots[id], true
}

// Len is the number of configured blocks.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// Pending reports outstanding constructions and operations.
func (b *Board) Pending() (constructions, operations int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pendingConstructions, b.pendingOps
}

// StartedAt is when the dispatcher was created.
func (b *Board) StartedAt() time.Time {
	return b.startedAt
}
