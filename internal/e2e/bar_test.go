package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/blocks"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/dispatch"
	"github.com/mattjoyce/barline/internal/events"
	"github.com/mattjoyce/barline/internal/log"
	"github.com/mattjoyce/barline/internal/protocol"
	"github.com/mattjoyce/barline/internal/signals"
	"github.com/mattjoyce/barline/internal/state"
)

// barOutput collects what the bar would read from stdout.
type barOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *barOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(p)
}

func (o *barOutput) lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Split(strings.TrimRight(o.buf.String(), "\n"), "\n")
}

// latest returns the last complete status line, or nil if none parses.
func (o *barOutput) latest() []protocol.Fragment {
	lines := o.lines()
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSuffix(lines[i], ",")
		if !strings.HasPrefix(line, "[") || line == "[" {
			continue
		}
		var frags []protocol.Fragment
		if err := json.Unmarshal([]byte(line), &frags); err != nil {
			return nil
		}
		return frags
	}
	return nil
}

func textOf(frags []protocol.Fragment, name string) []string {
	var out []string
	for _, f := range frags {
		if f.Name == name {
			out = append(out, f.FullText)
		}
	}
	return out
}

func waitForText(t *testing.T, out *barOutput, name, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, text := range textOf(out.latest(), name) {
			if strings.Contains(text, want) {
				return true
			}
		}
		return false
	}, 10*time.Second, 20*time.Millisecond, "block %s never showed %q; last lines: %v", name, want, out.lines())
}

func sendClick(t *testing.T, w io.Writer, id int, button block.Button) {
	t.Helper()
	line, err := json.Marshal(protocol.ClickEvent{Name: fmt.Sprint(id), Button: int(button)})
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, "%s,\n", line)
	require.NoError(t, err)
}

func TestBarEndToEnd(t *testing.T) {
	log.Setup("ERROR", "json")

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "state.db")
	dataFile := filepath.Join(tmpDir, "value.txt")
	clickedFile := filepath.Join(tmpDir, "clicked")
	require.NoError(t, os.WriteFile(dataFile, []byte("first\n"), 0o644))

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
[state]
path = %q

[[block]]
block = "text"
text = "hello"
on_click = "touch %s"

[[block]]
block = "custom"
cycle = ["echo one", "echo two"]
interval = "once"

[[block]]
block = "custom"
command = "cat %s"
interval = "once"
signal = 3

[[block]]
block = "memory"
interval = 60
`, dbPath, clickedFile, dataFile)), "toml")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := state.Open(ctx, dbPath)
	require.NoError(t, err)
	shared := block.NewShared(log.WithComponent("blocks"), store, cfg.Theme)
	defer shared.Close()

	out := &barOutput{}
	hub := events.NewHub(64)
	disp := dispatch.New(cfg.Blocks, dispatch.Options{
		Emitter:     protocol.NewWriter(out, cfg.Theme, true),
		Constructor: blocks.NewRegistry(),
		Shared:      shared,
		Hub:         hub,
	})

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()
	sigs := make(chan signals.Signal, 1)

	done := make(chan error, 1)
	go func() {
		done <- disp.Run(ctx, dispatch.Sources{
			Clicks:  protocol.ReadClicks(ctx, stdinR, cfg.InvertScroll()),
			Signals: sigs,
		})
	}()

	// 1. Every block renders and the header comes first
	waitForText(t, out, "0", "hello")
	waitForText(t, out, "1", "one")
	waitForText(t, out, "2", "first")
	waitForText(t, out, "3", "MEM")

	lines := out.lines()
	require.GreaterOrEqual(t, len(lines), 3)
	var header protocol.Header
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, 1, header.Version)
	assert.True(t, header.ClickEvents)
	assert.Equal(t, "[", lines[1])

	// 2. A click advances the cycle
	_, err = fmt.Fprintln(stdinW, "[")
	require.NoError(t, err)
	sendClick(t, stdinW, 1, block.ButtonLeft)
	waitForText(t, out, "1", "two")

	// 3. on_click runs for blocks that do not handle clicks themselves
	sendClick(t, stdinW, 0, block.ButtonLeft)
	require.Eventually(t, func() bool {
		_, err := os.Stat(clickedFile)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	// 4. A numbered signal refreshes only the matching block
	require.NoError(t, os.WriteFile(dataFile, []byte("second\n"), 0o644))
	sigs <- signals.Signal{Kind: signals.Numbered, N: 3}
	waitForText(t, out, "2", "second")

	// 5. The memory toggle is persisted
	sendClick(t, stdinW, 3, block.ButtonLeft)
	waitForText(t, out, "3", "SWAP")
	require.Eventually(t, func() bool {
		raw, err := store.Get(ctx, "3:memory")
		return err == nil && strings.Contains(string(raw), `"swap":true`)
	}, 10*time.Second, 20*time.Millisecond)

	// 6. Lifecycle events reached the hub
	assert.NotEmpty(t, hub.SnapshotSince(0, nil))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
