package tui

import (
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/barline/internal/block"
)

// Bridge is the dispatcher's Emitter for the preview. Snapshots emitted
// before a program is attached are held and replayed on Attach.
type Bridge struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending [][]block.Widget
	closed  bool
}

var errBridgeClosed = errors.New("preview closed")

func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach connects the bridge to a running program.
func (b *Bridge) Attach(p *tea.Program) {
	b.attach(p.Send)
}

func (b *Bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if pending != nil {
		send(snapshotMsg(pending))
	}
}

// Close makes further Emit calls fail so the dispatcher stops.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Bridge) Emit(snapshot [][]block.Widget) error {
	cp := make([][]block.Widget, len(snapshot))
	for i, ws := range snapshot {
		cp[i] = append([]block.Widget(nil), ws...)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errBridgeClosed
	}
	send := b.send
	if send == nil {
		b.pending = cp
	}
	b.mu.Unlock()

	if send != nil {
		send(snapshotMsg(cp))
	}
	return nil
}
