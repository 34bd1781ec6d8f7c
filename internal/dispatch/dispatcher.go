package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/events"
	"github.com/mattjoyce/barline/internal/log"
	"github.com/mattjoyce/barline/internal/scheduler"
	"github.com/mattjoyce/barline/internal/signals"
)

// DefaultRequestBuffer is the capacity of the update request channel.
const DefaultRequestBuffer = 32

// Emitter receives the full ordered snapshot after every visible change.
type Emitter interface {
	Emit(snapshot [][]block.Widget) error
}

// Constructor builds blocks from their config. *block.Registry implements it.
type Constructor interface {
	Construct(ctx context.Context, env block.Env, bc config.BlockConfig) (block.Block, block.Handlers, error)
}

// Options configures a Dispatcher.
type Options struct {
	Emitter     Emitter
	Constructor Constructor
	Shared      *block.Shared

	// Restart is called on a reload signal. It only returns on failure.
	Restart func() error

	// Spawn launches an on_click command without waiting for it.
	Spawn func(cmd string) error

	Hub    *events.Hub
	Logger *slog.Logger
	Now    func() time.Time

	RequestBuffer int
}

// Sources are the external event streams. Either may be nil.
type Sources struct {
	Clicks  <-chan block.Click
	Signals <-chan signals.Signal
}

type constructionResult struct {
	id       int
	blk      block.Block
	handlers block.Handlers
	err      error
}

type opResult struct {
	id          int
	blk         block.Block
	op          block.Op
	err         error
	view        []block.Widget
	interval    time.Duration
	hasInterval bool
}

// Dispatcher multiplexes block operations on a single goroutine.
type Dispatcher struct {
	opts    Options
	configs []config.BlockConfig
	logger  *slog.Logger

	slots []*slot
	sched *scheduler.Scheduler

	constructions chan constructionResult
	completions   chan opResult
	requests      chan int
	done          chan struct{}

	pendingConstructions int
	pendingOps           int

	board *Board
}

// New creates a dispatcher for the given blocks. Block ids are the indexes
// into blocks.
func New(blocks []config.BlockConfig, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("dispatch")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Spawn == nil {
		opts.Spawn = SpawnDetached
	}
	if opts.RequestBuffer <= 0 {
		opts.RequestBuffer = DefaultRequestBuffer
	}

	n := len(blocks)
	d := &Dispatcher{
		opts:    opts,
		configs: blocks,
		logger:  opts.Logger,
		slots:   make([]*slot, n),
		sched:   scheduler.New(n),
		// Each slot has at most one construction and one operation
		// outstanding, so these sends never block.
		constructions: make(chan constructionResult, n),
		completions:   make(chan opResult, n),
		requests:      make(chan int, opts.RequestBuffer),
		done:          make(chan struct{}),
		board:         newBoard(n, opts.Now()),
	}
	for i, bc := range blocks {
		d.slots[i] = &slot{id: i, name: bc.Type, state: StateConstructing}
	}
	return d
}

// Requester returns the handle blocks use to ask for updates.
func (d *Dispatcher) Requester() block.Requester {
	return block.NewRequester(d.requests, d.done)
}

// Board returns the read-only status board.
func (d *Dispatcher) Board() *Board {
	return d.board
}

// Run drives the event loop until ctx is done or a reload fails.
func (d *Dispatcher) Run(ctx context.Context, src Sources) error {
	defer close(d.done)

	d.logger.Info("dispatcher started", "blocks", len(d.slots))
	for i := range d.slots {
		d.startConstruction(ctx, i)
	}
	d.syncBoard()

	clicks := src.Clicks
	sigs := src.Signals

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		if wait, ok := d.sched.TimeToNextWake(d.opts.Now()); ok {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		changed := false
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping",
				"pending_constructions", d.pendingConstructions,
				"pending_operations", d.pendingOps)
			return nil

		case res := <-d.constructions:
			changed = d.handleConstruction(ctx, res)

		case res := <-d.completions:
			changed = d.handleCompletion(res)

		case id := <-d.requests:
			d.handleRequest(ctx, id)

		case c, ok := <-clicks:
			if !ok {
				clicks = nil
				continue
			}
			d.handleClick(ctx, c)

		case s, ok := <-sigs:
			if !ok {
				sigs = nil
				continue
			}
			if err := d.handleSignal(ctx, s); err != nil {
				return err
			}

		case <-timerC:
			timer = nil
			d.handleTimer(ctx)
		}

		if changed {
			d.emit()
		}
		d.syncBoard()
	}
}

func (d *Dispatcher) startConstruction(ctx context.Context, id int) {
	env := block.Env{
		ID:       id,
		Type:     d.configs[id].Type,
		Shared:   d.opts.Shared,
		Requests: d.Requester(),
	}
	bc := d.configs[id]
	d.pendingConstructions++

	go func() {
		res := constructionResult{id: id}
		defer func() {
			if r := recover(); r != nil {
				res.blk = nil
				res.err = fmt.Errorf("panic during construction: %v", r)
			}
			d.constructions <- res
		}()
		res.blk, res.handlers, res.err = d.opts.Constructor.Construct(ctx, env, bc)
	}()
}

func (d *Dispatcher) handleConstruction(ctx context.Context, res constructionResult) bool {
	d.pendingConstructions--
	s := d.slots[res.id]
	logger := d.slotLogger(s)
	if res.err == nil && res.blk == nil {
		res.err = errors.New("constructor returned no block")
	}

	switch {
	case errors.Is(res.err, block.ErrSkipped):
		s.state = StateSkipped
		s.rendered = nil
		logger.Info("block skipped by if_command")
		d.publish(events.BlockSkipped, s, nil)

	case res.err != nil:
		ce := &block.ConstructionError{ID: s.id, Type: s.name, Err: res.err}
		s.state = StateFailed
		s.lastErr = ce
		s.rendered = []block.Widget{block.ErrorWidget(ce)}
		logger.Error("block construction failed", "error", res.err)
		d.publish(events.BlockFailed, s, ce)

	default:
		s.handlers = res.handlers
		s.restore(res.blk)
		s.rendered = copyView(res.blk.View())
		logger.Debug("block constructed")
		d.publish(events.BlockConstructed, s, nil)
		d.startUpdate(ctx, s.id)
	}
	return true
}

func (d *Dispatcher) startUpdate(ctx context.Context, id int) {
	d.startOp(ctx, id, nil)
}

func (d *Dispatcher) startClick(ctx context.Context, c block.Click) {
	d.startOp(ctx, c.ID, &c)
}

func (d *Dispatcher) startOp(ctx context.Context, id int, click *block.Click) {
	s := d.slots[id]
	b := s.take()
	d.pendingOps++

	go func() {
		res := opResult{id: id, blk: b, op: block.OpUpdate}
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("panic during %s: %v", res.op, r)
				res.view = nil
				res.interval, res.hasInterval = safeInterval(b)
			}
			d.completions <- res
		}()

		if click != nil {
			res.op = block.OpClick
			refresh, err := b.Click(ctx, *click)
			if err != nil {
				res.err = err
			} else if refresh {
				res.op = block.OpUpdate
				res.err = b.Update(ctx)
			}
		} else {
			res.err = b.Update(ctx)
		}

		res.view = b.View()
		res.interval, res.hasInterval = b.Interval()
	}()
}

// safeInterval keeps a block that panicked on its schedule.
func safeInterval(b block.Block) (d time.Duration, ok bool) {
	defer func() {
		if recover() != nil {
			d, ok = 0, false
		}
	}()
	return b.Interval()
}

func (d *Dispatcher) handleCompletion(res opResult) bool {
	d.pendingOps--
	s := d.slots[res.id]
	logger := d.slotLogger(s)

	s.restore(res.blk)
	s.runs++
	s.updatedAt = d.opts.Now()

	if res.err != nil {
		opErr := &block.OperationError{ID: s.id, Op: res.op, Err: res.err}
		s.lastErr = opErr
		s.rendered = []block.Widget{block.ErrorWidget(res.err)}
		logger.Warn("block operation failed", "op", res.op, "error", res.err)
		d.publish(events.BlockError, s, opErr)
	} else {
		s.lastErr = nil
		s.rendered = copyView(res.view)
		d.publish(events.BlockUpdated, s, nil)
	}

	d.sched.Pop(s.id)
	if res.hasInterval && res.interval > 0 {
		d.sched.Push(s.id, d.opts.Now().Add(res.interval))
	}
	return true
}

func (d *Dispatcher) handleRequest(ctx context.Context, id int) {
	if id < 0 || id >= len(d.slots) {
		d.logger.Warn("update request for unknown block", "block_id", id)
		return
	}
	s := d.slots[id]
	switch s.state {
	case StateOwned:
		d.startUpdate(ctx, id)
	case StateInFlight:
		d.slotLogger(s).Debug("update request coalesced")
		d.publish(events.RequestCoalesced, s, nil)
	}
}

func (d *Dispatcher) handleClick(ctx context.Context, c block.Click) {
	if c.ID < 0 || c.ID >= len(d.slots) {
		return
	}
	s := d.slots[c.ID]
	logger := d.slotLogger(s)

	switch s.state {
	case StateConstructing, StateFailed, StateSkipped:
		logger.Debug("click dropped", "state", s.state.String(), "button", int(c.Button))
		return
	}

	if s.handlers.OnClick != "" && c.Button == block.ButtonLeft {
		logger.Info("running on_click command", "command", s.handlers.OnClick)
		if err := d.opts.Spawn(s.handlers.OnClick); err != nil {
			logger.Error("on_click command failed to start", "error", err)
		}
		d.publish(events.ClickCommand, s, nil)
		return
	}

	if s.state != StateOwned {
		logger.Debug("click dropped", "state", s.state.String(), "button", int(c.Button))
		return
	}
	d.startClick(ctx, c)
}

func (d *Dispatcher) handleSignal(ctx context.Context, sig signals.Signal) error {
	d.logger.Info("signal received", "signal", sig.String())
	d.publish(events.SignalReceived, nil, nil, "signal", sig.String())

	switch sig.Kind {
	case signals.RefreshAll:
		for _, s := range d.slots {
			if s.state == StateOwned {
				d.startUpdate(ctx, s.id)
			}
		}
	case signals.Numbered:
		for _, s := range d.slots {
			if s.state == StateOwned && s.handlers.MatchesSignal(sig.N) {
				d.startUpdate(ctx, s.id)
			}
		}
	case signals.Reload:
		if d.opts.Restart == nil {
			d.logger.Warn("reload requested but no restarter configured")
			return nil
		}
		if err := d.opts.Restart(); err != nil {
			return fmt.Errorf("reload failed: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) handleTimer(ctx context.Context) {
	for _, id := range d.sched.PopDue(d.opts.Now()) {
		if d.slots[id].state == StateOwned {
			d.startUpdate(ctx, id)
		}
	}
}

// snapshot returns what the bar currently shows, one entry per block.
func (d *Dispatcher) snapshot() [][]block.Widget {
	out := make([][]block.Widget, len(d.slots))
	for i, s := range d.slots {
		out[i] = s.rendered
	}
	return out
}

func (d *Dispatcher) emit() {
	if d.opts.Emitter == nil {
		return
	}
	if err := d.opts.Emitter.Emit(d.snapshot()); err != nil {
		d.logger.Error("failed to emit status line", "error", err)
	}
}

func (d *Dispatcher) syncBoard() {
	now := d.opts.Now()
	statuses := make([]SlotStatus, len(d.slots))
	for i, s := range d.slots {
		st := SlotStatus{
			ID:        s.id,
			Name:      s.name,
			State:     s.state.String(),
			Widgets:   append([]block.Widget(nil), s.rendered...),
			Runs:      s.runs,
			Signal:    s.handlers.Signal,
			UpdatedAt: s.updatedAt,
		}
		if s.lastErr != nil {
			st.LastError = s.lastErr.Error()
		}
		if due, ok := d.sched.Due(s.id); ok {
			in := due.Sub(now)
			st.NextDue = &due
			st.NextIn = in
		}
		statuses[i] = st
	}
	d.board.set(statuses, d.pendingConstructions, d.pendingOps)
}

// copyView detaches a block's view from the block so later mutation of the
// block's own slice cannot change what the bar shows.
func copyView(ws []block.Widget) []block.Widget {
	if ws == nil {
		return nil
	}
	return append([]block.Widget(nil), ws...)
}

func (d *Dispatcher) slotLogger(s *slot) *slog.Logger {
	return d.logger.With(slog.Int("block_id", s.id), slog.String("block", s.name))
}

func (d *Dispatcher) publish(eventType string, s *slot, err error, extra ...any) {
	if d.opts.Hub == nil {
		return
	}
	payload := map[string]any{}
	if s != nil {
		payload["block_id"] = s.id
		payload["block"] = s.name
		payload["state"] = s.state.String()
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			payload[k] = extra[i+1]
		}
	}
	d.opts.Hub.Publish(eventType, payload)
}
