package dispatch

import (
	"fmt"
	"time"

	"github.com/mattjoyce/barline/internal/block"
)

// SlotState is the lifecycle state of one configured block.
type SlotState int

const (
	StateConstructing SlotState = iota
	StateOwned
	StateInFlight
	StateFailed
	StateSkipped
)

func (s SlotState) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateOwned:
		return "owned"
	case StateInFlight:
		return "in_flight"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type slot struct {
	id       int
	name     string
	state    SlotState
	inner    block.Block // non-nil iff state == StateOwned
	handlers block.Handlers
	rendered []block.Widget

	lastErr   error
	updatedAt time.Time
	runs      int
}

// take moves the block out of the slot for an operation.
func (s *slot) take() block.Block {
	if s.state != StateOwned || s.inner == nil {
		panic(fmt.Sprintf("dispatch: take on slot %d in state %s", s.id, s.state))
	}
	b := s.inner
	s.inner = nil
	s.state = StateInFlight
	return b
}

// restore moves a block back after an operation or construction.
func (s *slot) restore(b block.Block) {
	s.inner = b
	s.state = StateOwned
}
