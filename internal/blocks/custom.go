package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

// errWatchExited is reported once a watch command ends on its own.
var errWatchExited = errors.New("watch command exited")

type customConfig struct {
	Command  string          `yaml:"command"`
	Cycle    []string        `yaml:"cycle"`
	Interval string          `yaml:"interval"`
	JSON     bool            `yaml:"json"`
	Timeout  config.Duration `yaml:"timeout"`
	Watch    bool            `yaml:"watch"`
}

type customSettings struct {
	commands []string
	interval time.Duration // zero runs once
	json     bool
	timeout  time.Duration
	// watch keeps the command running and shows its latest line.
	watch bool
}

func parseCustom(p config.Params) (customSettings, error) {
	var cfg customConfig
	if err := p.Decode(&cfg); err != nil {
		return customSettings{}, err
	}
	s := customSettings{json: cfg.JSON, timeout: 10 * time.Second, watch: cfg.Watch}

	switch {
	case cfg.Command != "" && len(cfg.Cycle) > 0:
		return s, errors.New("command and cycle are mutually exclusive")
	case cfg.Command != "":
		s.commands = []string{cfg.Command}
	case len(cfg.Cycle) > 0:
		for _, c := range cfg.Cycle {
			if strings.TrimSpace(c) == "" {
				return s, errors.New("cycle entries must not be empty")
			}
		}
		s.commands = cfg.Cycle
	default:
		return s, errors.New("command is required")
	}

	if s.watch {
		switch {
		case len(s.commands) > 1:
			return s, errors.New("watch does not support cycle")
		case strings.TrimSpace(cfg.Interval) != "":
			return s, errors.New("watch blocks update on output, interval does not apply")
		}
		return s, nil
	}

	switch iv := strings.TrimSpace(cfg.Interval); iv {
	case "once":
	case "":
		s.interval = 10 * time.Second
	default:
		d, err := config.ParseInterval(iv)
		if err != nil {
			return s, err
		}
		s.interval = d
	}

	if cfg.Timeout.Duration < 0 {
		return s, errors.New("timeout must be positive")
	}
	if cfg.Timeout.Duration > 0 {
		s.timeout = cfg.Timeout.Duration
	}
	return s, nil
}

type customBlock struct {
	textWidget
	env      block.Env
	settings customSettings
	next     int
	onClick  string

	run func(ctx context.Context, script string, timeout time.Duration) (string, error)

	// Written by the watch goroutine, read by Update.
	mu        sync.Mutex
	latest    string
	watchErr  error
	watchDone chan struct{}
}

func newCustom(ctx context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseCustom(p)
	if err != nil {
		return nil, err
	}
	b := &customBlock{
		textWidget: textWidget{interval: s.interval},
		env:        env,
		settings:   s,
	}
	b.run = shellRunner(env.Logger())
	if s.watch {
		b.watchDone = make(chan struct{})
		go b.watch(ctx, func(ctx context.Context, onLine func(string)) error {
			return streamShell(ctx, s.commands[0], env.Logger(), onLine)
		})
	}
	return b, nil
}

// watch feeds the command's output into the block and asks the dispatcher
// for an update per line. It runs until ctx is done or the command exits.
func (b *customBlock) watch(ctx context.Context, stream func(context.Context, func(string)) error) {
	defer close(b.watchDone)
	logger := b.env.Logger()

	err := stream(ctx, func(line string) {
		b.mu.Lock()
		b.latest = line
		b.mu.Unlock()
		if err := b.env.RequestUpdate(); err != nil {
			logger.Debug("update request not delivered", "error", err)
		}
	})
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errWatchExited
	}
	logger.Warn("watch command stopped", "error", err)
	b.mu.Lock()
	b.watchErr = err
	b.mu.Unlock()
	if err := b.env.RequestUpdate(); err != nil {
		logger.Debug("update request not delivered", "error", err)
	}
}

// OverrideClick takes over on_click so the command's effect shows up in the
// following refresh.
func (b *customBlock) OverrideClick(cmd string) bool {
	b.onClick = cmd
	return true
}

func (b *customBlock) Update(ctx context.Context) error {
	out, err := b.output(ctx)
	if err != nil {
		return err
	}

	if !b.settings.json || (b.settings.watch && out == "") {
		b.widget = block.Widget{Text: out}
		return nil
	}
	w, err := parseCustomJSON(out)
	if err != nil {
		return err
	}
	b.widget = w
	return nil
}

func (b *customBlock) output(ctx context.Context) (string, error) {
	if b.settings.watch {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.latest, b.watchErr
	}
	out, err := b.run(ctx, b.settings.commands[b.next], b.settings.timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

func parseCustomJSON(out string) (block.Widget, error) {
	if !gjson.Valid(out) {
		return block.Widget{}, fmt.Errorf("invalid JSON output: %q", firstLine(out))
	}
	doc := gjson.Parse(out)
	w := block.Widget{
		Text:      doc.Get("text").String(),
		ShortText: doc.Get("short_text").String(),
		Icon:      doc.Get("icon").String(),
	}
	if st := doc.Get("state"); st.Exists() && st.String() != "" {
		state, err := block.ParseState(strings.ToLower(st.String()))
		if err != nil {
			return w, err
		}
		w.State = state
	}
	return w, nil
}

func (b *customBlock) Click(ctx context.Context, c block.Click) (bool, error) {
	if c.Button != block.ButtonLeft {
		return false, nil
	}
	if len(b.settings.commands) > 1 {
		b.next = (b.next + 1) % len(b.settings.commands)
	}
	if b.onClick != "" {
		if _, err := b.run(ctx, b.onClick, b.settings.timeout); err != nil {
			return true, fmt.Errorf("on_click: %w", err)
		}
	}
	return true, nil
}
