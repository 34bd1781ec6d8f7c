package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/log"
)

// Writer emits status lines. It is safe for concurrent use.
type Writer struct {
	mu          sync.Mutex
	w           io.Writer
	theme       config.ThemeConfig
	needsHeader bool
	stopSignal  int
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithStopSignal advertises the signal the bar should send to pause output.
func WithStopSignal(sig int) WriterOption {
	return func(w *Writer) { w.stopSignal = sig }
}

// NewWriter returns a Writer. When init is false the header and opening
// bracket are assumed to be written by a previous process.
func NewWriter(w io.Writer, theme config.ThemeConfig, init bool, opts ...WriterOption) *Writer {
	wr := &Writer{w: w, theme: theme, needsHeader: init}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Emit writes one status line: the fragments of every block in order.
func (w *Writer) Emit(snapshot [][]block.Widget) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf bytes.Buffer
	if w.needsHeader {
		header, err := json.Marshal(Header{Version: 1, ClickEvents: true, StopSignal: w.stopSignal})
		if err != nil {
			return fmt.Errorf("failed to encode header: %w", err)
		}
		buf.Write(header)
		buf.WriteString("\n[\n")
	}

	line, err := json.Marshal(w.Fragments(snapshot))
	if err != nil {
		return fmt.Errorf("failed to encode status line: %w", err)
	}
	buf.Write(line)
	buf.WriteString(",\n")

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write status line: %w", err)
	}
	w.needsHeader = false
	return nil
}

// Fragments flattens a snapshot into themed fragments. Widgets are named by
// block id so clicks can be routed back.
func (w *Writer) Fragments(snapshot [][]block.Widget) []Fragment {
	out := make([]Fragment, 0, len(snapshot))
	for id, widgets := range snapshot {
		for _, wd := range widgets {
			fg, bg := w.colors(wd.State)
			out = append(out, Fragment{
				FullText:            wd.FullText(),
				ShortText:           wd.ShortText,
				Name:                strconv.Itoa(id),
				Instance:            wd.Instance,
				Color:               fg,
				Background:          bg,
				Separator:           w.theme.Separator,
				SeparatorBlockWidth: w.theme.SeparatorBlockWidth,
			})
		}
	}
	return out
}

func (w *Writer) colors(s block.State) (fg, bg string) {
	t := w.theme
	switch s {
	case block.StateInfo:
		return t.InfoFg, t.InfoBg
	case block.StateGood:
		return t.GoodFg, t.GoodBg
	case block.StateWarning:
		return t.WarningFg, t.WarningBg
	case block.StateCritical:
		return t.CriticalFg, t.CriticalBg
	default:
		return t.IdleFg, t.IdleBg
	}
}

// ReadClicks decodes click events from r until EOF. Clicks on fragments not
// produced by a Writer are dropped. With invertScroll the wheel buttons are
// swapped.
func ReadClicks(ctx context.Context, r io.Reader, invertScroll bool) <-chan block.Click {
	out := make(chan block.Click)
	logger := log.WithComponent("clicks")

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			c, ok, err := parseClick(scanner.Bytes())
			if err != nil {
				logger.Warn("malformed click event", "error", err)
				continue
			}
			if !ok {
				continue
			}
			if invertScroll {
				c.Button = c.Button.Invert()
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("click reader stopped", "error", err)
		}
	}()
	return out
}

// parseClick decodes one line of the click stream. ok is false for the
// array framing and for events that do not target a block.
func parseClick(line []byte) (block.Click, bool, error) {
	line = bytes.TrimSpace(line)
	line = bytes.TrimPrefix(line, []byte(","))
	line = bytes.TrimSpace(line)
	if len(line) == 0 || bytes.Equal(line, []byte("[")) || bytes.Equal(line, []byte("]")) {
		return block.Click{}, false, nil
	}

	// Separators may sit on either side of the object.
	if start, end := bytes.IndexByte(line, '{'), bytes.LastIndexByte(line, '}'); start >= 0 && end > start {
		line = line[start : end+1]
	}

	var ev ClickEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return block.Click{}, false, err
	}
	id, err := strconv.Atoi(ev.Name)
	if err != nil || id < 0 {
		return block.Click{}, false, nil
	}
	return block.Click{ID: id, Button: block.Button(ev.Button), Instance: ev.Instance}, true, nil
}
