package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/block/mocks"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/events"
	"github.com/mattjoyce/barline/internal/signals"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// syncBuffer is a bytes.Buffer safe for the dispatcher goroutine to write
// while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), []byte(s))
}

// NewTestSlogger returns a JSON logger writing into w.
func NewTestSlogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeBlock counts operations. Update blocks while gate is non-nil and
// open, which keeps the slot InFlight for as long as a test needs.
type fakeBlock struct {
	name     string
	interval time.Duration

	mu      sync.Mutex
	gate    chan struct{}
	errs    []error
	refresh bool

	updates atomic.Int32
	clicks  atomic.Int32
	running chan struct{}
}

func newFake(name string, interval time.Duration) *fakeBlock {
	return &fakeBlock{name: name, interval: interval, running: make(chan struct{}, 64)}
}

func (f *fakeBlock) Interval() (time.Duration, bool) {
	return f.interval, f.interval > 0
}

func (f *fakeBlock) Update(ctx context.Context) error {
	select {
	case f.running <- struct{}{}:
	default:
	}
	f.mu.Lock()
	gate := f.gate
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.updates.Add(1)
	return err
}

func (f *fakeBlock) Click(_ context.Context, _ block.Click) (bool, error) {
	f.clicks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh, nil
}

func (f *fakeBlock) View() []block.Widget {
	return []block.Widget{{Text: fmt.Sprintf("%s:%d", f.name, f.updates.Load())}}
}

func (f *fakeBlock) hold() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeBlock) release() {
	f.mu.Lock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
	f.mu.Unlock()
}

func (f *fakeBlock) failNext(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

// recorder is an Emitter that keeps every snapshot.
type recorder struct {
	mu        sync.Mutex
	snapshots [][][]block.Widget
}

func (r *recorder) Emit(s [][]block.Widget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *recorder) last() [][]block.Widget {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// seen reports whether any emitted snapshot contained text.
func (r *recorder) seen(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snap := range r.snapshots {
		for _, ws := range snap {
			for _, w := range ws {
				if w.Text == text {
					return true
				}
			}
		}
	}
	return false
}

func (r *recorder) texts() []string {
	var out []string
	for _, ws := range r.last() {
		for _, w := range ws {
			out = append(out, w.Text)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	d       *Dispatcher
	rec     *recorder
	clicks  chan block.Click
	sigs    chan signals.Signal
	cancel  context.CancelFunc
	errCh   chan error
	logs    *syncBuffer
	spawned chan string
}

func registryWith(t *testing.T, blocks map[string]block.Block) *block.Registry {
	t.Helper()
	reg := block.NewRegistry()
	for tag, b := range blocks {
		b := b
		require.NoError(t, reg.Register(tag, block.Definition{
			New: func(context.Context, block.Env, config.Params) (block.Block, error) { return b, nil },
		}))
	}
	require.NoError(t, reg.Register("broken", block.Definition{
		New: func(context.Context, block.Env, config.Params) (block.Block, error) {
			return nil, errors.New("bad format")
		},
	}))
	return reg
}

func start(t *testing.T, cfgs []config.BlockConfig, reg Constructor, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		rec:     &recorder{},
		clicks:  make(chan block.Click),
		sigs:    make(chan signals.Signal),
		errCh:   make(chan error, 1),
		logs:    &syncBuffer{},
		spawned: make(chan string, 4),
	}
	opts := Options{
		Emitter:     h.rec,
		Constructor: reg,
		Logger:      NewTestSlogger(h.logs),
		Spawn: func(cmd string) error {
			h.spawned <- cmd
			return nil
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.d = New(cfgs, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.errCh <- h.d.Run(ctx, Sources{Clicks: h.clicks, Signals: h.sigs})
	}()
	return h
}

func (h *harness) stop() {
	h.t.Helper()
	h.cancel()
	select {
	case err := <-h.errCh:
		assert.NoError(h.t, err)
	case <-time.After(waitFor):
		h.t.Fatal("dispatcher did not stop")
	}
}

func (h *harness) state(id int) string {
	s, _ := h.d.Board().Slot(id)
	return s.State
}

func blocks(types ...string) []config.BlockConfig {
	out := make([]config.BlockConfig, len(types))
	for i, t := range types {
		out[i] = config.BlockConfig{Type: t}
	}
	return out
}

func TestConstructionRendersAndUpdatesImmediately(t *testing.T) {
	a := newFake("a", 0)
	b := newFake("b", 0)
	h := start(t, blocks("a", "b"), registryWith(t, map[string]block.Block{"a": a, "b": b}), nil)
	defer h.stop()

	assert.Eventually(t, func() bool {
		return a.updates.Load() == 1 && b.updates.Load() == 1
	}, waitFor, tick)

	assert.Eventually(t, func() bool {
		return cmp.Equal([]string{"a:1", "b:1"}, h.rec.texts())
	}, waitFor, tick)

	assert.Eventually(t, func() bool { return h.state(0) == "owned" && h.state(1) == "owned" }, waitFor, tick)
}

func TestConstructionFailureAndSkipKeepPositions(t *testing.T) {
	a := newFake("a", 0)
	c := newFake("c", 0)
	cfgs := []config.BlockConfig{
		{Type: "a"},
		{Type: "broken"},
		{Type: "c", IfCommand: "exit 1"},
		{Type: "a2"},
	}
	a2 := newFake("a2", 0)
	h := start(t, cfgs, registryWith(t, map[string]block.Block{"a": a, "c": c, "a2": a2}), nil)
	defer h.stop()

	assert.Eventually(t, func() bool {
		snap := h.rec.last()
		return len(snap) == 4 && len(snap[0]) == 1 && len(snap[1]) == 1 && len(snap[3]) == 1 &&
			snap[0][0].Text == "a:1" && snap[3][0].Text == "a2:1"
	}, waitFor, tick)

	snap := h.rec.last()
	require.Len(t, snap[1], 1)
	assert.Contains(t, snap[1][0].Text, "Error: block 1 (broken): bad format")
	assert.Equal(t, block.StateCritical, snap[1][0].State)
	assert.Empty(t, snap[2], "skipped blocks render nothing")

	assert.Eventually(t, func() bool { return h.state(1) == "failed" && h.state(2) == "skipped" }, waitFor, tick)
	assert.Zero(t, c.updates.Load())
}

func TestRequestsCoalesceWhileInFlight(t *testing.T) {
	a := newFake("a", 0)
	a.hold()
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	<-a.running // first update started
	require.Eventually(t, func() bool { return h.state(0) == "in_flight" }, waitFor, tick)

	req := h.d.Requester()
	for i := 0; i < 5; i++ {
		require.NoError(t, req.Request(0))
	}
	// Out-of-range ids are ignored.
	require.NoError(t, req.Request(99))

	// Let the dispatcher drain the queue while the block is still busy.
	require.Eventually(t, func() bool {
		return h.logs.Contains("update request coalesced")
	}, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	a.release()
	require.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), a.updates.Load(), "requests during an update are dropped")

	require.NoError(t, req.Request(0))
	assert.Eventually(t, func() bool { return a.updates.Load() == 2 }, waitFor, tick)
}

func TestIntervalReschedulesFromCompletion(t *testing.T) {
	a := newFake("a", 20*time.Millisecond)
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	assert.Eventually(t, func() bool { return a.updates.Load() >= 4 }, waitFor, tick)

	s, ok := h.d.Board().Slot(0)
	require.True(t, ok)
	assert.GreaterOrEqual(t, s.Runs, 3)
}

func TestNoIntervalNeverPolls(t *testing.T) {
	a := newFake("a", 0)
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	require.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), a.updates.Load())

	s, _ := h.d.Board().Slot(0)
	assert.Nil(t, s.NextDue)
}

func TestUpdateErrorIsRenderedAndBlockStaysScheduled(t *testing.T) {
	a := newFake("a", 15*time.Millisecond)
	a.failNext(errors.New("sensor unplugged"))
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	assert.Eventually(t, func() bool { return h.rec.seen("Error: sensor unplugged") }, waitFor, tick)

	// The next successful update replaces the error.
	assert.Eventually(t, func() bool {
		texts := h.rec.texts()
		return len(texts) == 1 && texts[0] != "Error: sensor unplugged"
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		s, _ := h.d.Board().Slot(0)
		return s.LastError == ""
	}, waitFor, tick)
}

func TestClickWithRefreshRunsUpdate(t *testing.T) {
	a := newFake("a", 0)
	a.refresh = true
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	require.Eventually(t, func() bool { return h.state(0) == "owned" && a.updates.Load() == 1 }, waitFor, tick)

	h.clicks <- block.Click{ID: 0, Button: block.ButtonLeft}
	assert.Eventually(t, func() bool { return a.clicks.Load() == 1 && a.updates.Load() == 2 }, waitFor, tick)
	assert.Eventually(t, func() bool { return cmp.Equal([]string{"a:2"}, h.rec.texts()) }, waitFor, tick)

	// Clicks for unknown blocks are ignored.
	h.clicks <- block.Click{ID: 7, Button: block.ButtonLeft}
}

func TestClickWithoutRefreshSkipsUpdate(t *testing.T) {
	a := newFake("a", 0)
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), nil)
	defer h.stop()

	require.Eventually(t, func() bool { return h.state(0) == "owned" && a.updates.Load() == 1 }, waitFor, tick)
	h.clicks <- block.Click{ID: 0, Button: block.ButtonRight}
	assert.Eventually(t, func() bool { return a.clicks.Load() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)
	assert.Equal(t, int32(1), a.updates.Load())
}

func TestOnClickOverrideBypassesBlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockBlock(ctrl)
	m.EXPECT().Update(gomock.Any()).Return(nil).AnyTimes()
	m.EXPECT().View().Return([]block.Widget{{Text: "mock"}}).AnyTimes()
	m.EXPECT().Interval().Return(time.Duration(0), false).AnyTimes()
	m.EXPECT().Click(gomock.Any(), gomock.Any()).Times(0)

	cfgs := []config.BlockConfig{{Type: "m", OnClick: "notify-send hello"}}
	h := start(t, cfgs, registryWith(t, map[string]block.Block{"m": m}), nil)
	defer h.stop()

	require.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)

	h.clicks <- block.Click{ID: 0, Button: block.ButtonLeft}
	select {
	case cmd := <-h.spawned:
		assert.Equal(t, "notify-send hello", cmd)
	case <-time.After(waitFor):
		t.Fatal("on_click command not spawned")
	}
	assert.Equal(t, "owned", h.state(0), "override does not take the block")
}

func TestSignalsRefresh(t *testing.T) {
	one, two := 1, 2
	a := newFake("a", 0)
	b := newFake("b", 0)
	c := newFake("c", 0)
	cfgs := []config.BlockConfig{{Type: "a", Signal: &one}, {Type: "b", Signal: &two}, {Type: "c"}}
	h := start(t, cfgs, registryWith(t, map[string]block.Block{"a": a, "b": b, "c": c}), nil)
	defer h.stop()

	ready := func() bool {
		return h.state(0) == "owned" && h.state(1) == "owned" && h.state(2) == "owned"
	}
	require.Eventually(t, ready, waitFor, tick)

	h.sigs <- signals.Signal{Kind: signals.Numbered, N: 2}
	assert.Eventually(t, func() bool { return b.updates.Load() == 2 }, waitFor, tick)
	require.Eventually(t, ready, waitFor, tick)
	assert.Equal(t, int32(1), a.updates.Load())
	assert.Equal(t, int32(1), c.updates.Load())

	h.sigs <- signals.Signal{Kind: signals.RefreshAll}
	assert.Eventually(t, func() bool {
		return a.updates.Load() == 2 && b.updates.Load() == 3 && c.updates.Load() == 2
	}, waitFor, tick)
}

func TestReloadSignal(t *testing.T) {
	var restarts atomic.Int32
	a := newFake("a", 0)
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), func(o *Options) {
		o.Restart = func() error {
			restarts.Add(1)
			return errors.New("exec format error")
		}
	})

	// Reload only once the block has settled so its update is not lost
	// when Run returns.
	require.Eventually(t, func() bool { return h.state(0) == "owned" && a.updates.Load() == 1 }, waitFor, tick)

	h.sigs <- signals.Signal{Kind: signals.Reload}
	select {
	case err := <-h.errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reload failed")
	case <-time.After(waitFor):
		t.Fatal("Run did not return after failed reload")
	}
	h.cancel()
	assert.Equal(t, int32(1), restarts.Load())
	assert.Equal(t, int32(1), a.updates.Load())
}

func TestPanicIsRenderedAsError(t *testing.T) {
	p := &panicBlock{}
	h := start(t, blocks("p"), registryWith(t, map[string]block.Block{"p": p}), nil)
	defer h.stop()

	assert.Eventually(t, func() bool {
		texts := h.rec.texts()
		return len(texts) == 1 && texts[0] == "Error: panic during update: boom"
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)
}

type panicBlock struct{}

func (panicBlock) Interval() (time.Duration, bool)                  { return 0, false }
func (panicBlock) Update(context.Context) error                     { panic("boom") }
func (panicBlock) Click(context.Context, block.Click) (bool, error) { return false, nil }
func (panicBlock) View() []block.Widget                             { return nil }

func TestEventsPublished(t *testing.T) {
	hub := events.NewHub(32)
	a := newFake("a", 0)
	h := start(t, blocks("a", "broken"), registryWith(t, map[string]block.Block{"a": a}), func(o *Options) {
		o.Hub = hub
	})
	defer h.stop()

	assert.Eventually(t, func() bool {
		seen := map[string]bool{}
		for _, ev := range hub.SnapshotSince(0, nil) {
			seen[ev.Type] = true
		}
		return seen["block.constructed"] && seen["block.failed"] && seen["block.updated"]
	}, waitFor, tick)
}

func TestRequesterClosedAfterRun(t *testing.T) {
	h := start(t, nil, block.NewRegistry(), nil)
	req := h.d.Requester()
	h.stop()
	assert.ErrorIs(t, req.Request(0), block.ErrChannelClosed)
}

func TestFailedAndSkippedBlocksIgnoreOnClick(t *testing.T) {
	a := newFake("a", 0)
	c := newFake("c", 0)
	cfgs := []config.BlockConfig{
		{Type: "broken", OnClick: "rm -rf ~/important"},
		{Type: "c", IfCommand: "exit 1", OnClick: "echo hi"},
		{Type: "a"},
	}
	h := start(t, cfgs, registryWith(t, map[string]block.Block{"a": a, "c": c}), nil)
	defer h.stop()

	require.Eventually(t, func() bool {
		return h.state(0) == "failed" && h.state(1) == "skipped" && h.state(2) == "owned"
	}, waitFor, tick)

	h.clicks <- block.Click{ID: 0, Button: block.ButtonLeft}
	h.clicks <- block.Click{ID: 1, Button: block.ButtonLeft}
	// Clicks are handled in order, so once a sees its click the others
	// have been dealt with.
	h.clicks <- block.Click{ID: 2, Button: block.ButtonLeft}
	require.Eventually(t, func() bool { return a.clicks.Load() == 1 }, waitFor, tick)

	select {
	case cmd := <-h.spawned:
		t.Fatalf("on_click spawned for a block that is not running: %q", cmd)
	default:
	}
	assert.Zero(t, c.clicks.Load())

	s, ok := h.d.Board().Slot(0)
	require.True(t, ok)
	assert.Nil(t, s.Signal, "failed blocks keep no handlers")
}

// constructorFunc adapts a function to the Constructor interface.
type constructorFunc func(ctx context.Context, env block.Env, bc config.BlockConfig) (block.Block, block.Handlers, error)

func (f constructorFunc) Construct(ctx context.Context, env block.Env, bc config.BlockConfig) (block.Block, block.Handlers, error) {
	return f(ctx, env, bc)
}

func TestFailedBlockNeverDispatched(t *testing.T) {
	one := 1
	ghost := newFake("ghost", 10*time.Millisecond)
	a := newFake("a", 0)
	ctor := constructorFunc(func(_ context.Context, _ block.Env, bc config.BlockConfig) (block.Block, block.Handlers, error) {
		if bc.Type == "ghost" {
			// A constructor that hands back a value alongside its error
			// must not get that value scheduled.
			return ghost, block.Handlers{Signal: &one}, errors.New("bad format")
		}
		return a, block.Handlers{}, nil
	})
	h := start(t, blocks("ghost", "a"), ctor, nil)
	defer h.stop()

	require.Eventually(t, func() bool {
		return h.state(0) == "failed" && h.state(1) == "owned" && a.updates.Load() == 1
	}, waitFor, tick)

	req := h.d.Requester()
	require.NoError(t, req.Request(0))
	h.sigs <- signals.Signal{Kind: signals.Numbered, N: 1}
	h.sigs <- signals.Signal{Kind: signals.RefreshAll}
	h.clicks <- block.Click{ID: 0, Button: block.ButtonLeft}

	require.Eventually(t, func() bool { return a.updates.Load() == 2 }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)

	assert.Zero(t, ghost.updates.Load())
	assert.Zero(t, ghost.clicks.Load())
	assert.Equal(t, "failed", h.state(0))
	s, _ := h.d.Board().Slot(0)
	assert.Nil(t, s.NextDue)
}

func TestRefreshAllWhileInFlightRunsNoExtraUpdate(t *testing.T) {
	a := newFake("a", 0)
	b := newFake("b", 0)
	a.hold()
	h := start(t, blocks("a", "b"), registryWith(t, map[string]block.Block{"a": a, "b": b}), nil)
	defer h.stop()

	<-a.running
	require.Eventually(t, func() bool {
		return h.state(0) == "in_flight" && h.state(1) == "owned" && b.updates.Load() == 1
	}, waitFor, tick)

	h.sigs <- signals.Signal{Kind: signals.RefreshAll}
	require.Eventually(t, func() bool { return b.updates.Load() == 2 }, waitFor, tick)

	a.release()
	require.Eventually(t, func() bool { return h.state(0) == "owned" }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), a.updates.Load(), "refresh during an update is dropped")
}

// fakeClock is a manually advanced Options.Now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestIntervalCountsFromCompletion(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	a := newFake("a", 10*time.Second)
	a.hold()
	h := start(t, blocks("a"), registryWith(t, map[string]block.Block{"a": a}), func(o *Options) {
		o.Now = clock.Now
	})
	defer h.stop()

	<-a.running
	// The first update takes 3.2s of clock time.
	clock.Set(t0.Add(3200 * time.Millisecond))
	a.release()
	require.Eventually(t, func() bool { return h.state(0) == "owned" && a.updates.Load() == 1 }, waitFor, tick)

	s, _ := h.d.Board().Slot(0)
	require.NotNil(t, s.NextDue)
	assert.Equal(t, t0.Add(13200*time.Millisecond), *s.NextDue)

	// Requests for unknown ids wake the loop without touching any block,
	// which makes it re-read the clock.
	wake := func() { require.NoError(t, h.d.Requester().Request(99)) }

	clock.Set(t0.Add(13 * time.Second))
	wake()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), a.updates.Load(), "not due before completion plus interval")

	clock.Set(t0.Add(13200 * time.Millisecond))
	wake()
	assert.Eventually(t, func() bool { return a.updates.Load() == 2 }, waitFor, tick)
}

// aliasingBlock hands out its own backing slice from View.
type aliasingBlock struct {
	mu sync.Mutex
	ws []block.Widget
}

func (b *aliasingBlock) Interval() (time.Duration, bool)                  { return 0, false }
func (b *aliasingBlock) Update(context.Context) error                     { return nil }
func (b *aliasingBlock) Click(context.Context, block.Click) (bool, error) { return false, nil }
func (b *aliasingBlock) View() []block.Widget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ws
}

func (b *aliasingBlock) set(text string) {
	b.mu.Lock()
	b.ws[0].Text = text
	b.mu.Unlock()
}

func TestPublishedViewIsDetachedFromBlock(t *testing.T) {
	al := &aliasingBlock{ws: []block.Widget{{Text: "before"}}}
	b := newFake("b", 0)
	h := start(t, blocks("al", "b"), registryWith(t, map[string]block.Block{"al": al, "b": b}), nil)
	defer h.stop()

	require.Eventually(t, func() bool {
		return h.state(0) == "owned" && h.state(1) == "owned" && b.updates.Load() == 1
	}, waitFor, tick)

	al.set("after")
	require.NoError(t, h.d.Requester().Request(1))
	require.Eventually(t, func() bool { return cmp.Equal([]string{"before", "b:2"}, h.rec.texts()) }, waitFor, tick)

	s, _ := h.d.Board().Slot(0)
	require.Len(t, s.Widgets, 1)
	assert.Equal(t, "before", s.Widgets[0].Text)
}
