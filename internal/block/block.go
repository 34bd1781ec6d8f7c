// Package block defines the contract between the dispatcher and the things it
// schedules. A Block is owned by exactly one goroutine at a time: the
// dispatcher hands it to an operation and gets it back on completion, so
// implementations need no locking of their own.
package block

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_block.go -package=mocks github.com/mattjoyce/barline/internal/block Block

// Block is one configured status item.
type Block interface {
	// Interval reports how often the block wants to be refreshed. ok is
	// false for blocks that only update on demand.
	Interval() (d time.Duration, ok bool)

	// Update refreshes the block's view.
	Update(ctx context.Context) error

	// Click handles a click. It returns true when the view should be
	// refreshed afterwards.
	Click(ctx context.Context, c Click) (bool, error)

	// View returns the widgets to render. It must not block. The
	// dispatcher copies the slice, so a block may reuse its backing array.
	View() []Widget
}

// Handlers are the per-block settings the dispatcher acts on directly.
type Handlers struct {
	// Signal is the SIGRTMIN offset that refreshes this block.
	Signal *int

	// OnClick is a shell command run on left click instead of Click.
	OnClick string
}

// MatchesSignal reports whether a numbered signal targets this block.
func (h Handlers) MatchesSignal(n int) bool {
	return h.Signal != nil && *h.Signal == n
}

// ClickOverrider is implemented by blocks that want to run the on_click
// command themselves. When a block accepts it, the dispatcher's override is
// cleared and clicks go to the block.
type ClickOverrider interface {
	OverrideClick(cmd string) bool
}
