package blocks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type speedtestConfig struct {
	Format   string          `yaml:"format"`
	Interval config.Duration `yaml:"interval"`
	Command  string          `yaml:"command"`
	Timeout  config.Duration `yaml:"timeout"`
}

type speedtestSettings struct {
	format   *block.Template
	interval time.Duration
	command  string
	timeout  time.Duration
}

func parseSpeedtest(p config.Params) (speedtestSettings, error) {
	var cfg speedtestConfig
	if err := p.Decode(&cfg); err != nil {
		return speedtestSettings{}, err
	}
	s := speedtestSettings{command: strings.TrimSpace(cfg.Command)}
	if s.command == "" {
		s.command = "speedtest-cli --json"
	}
	var err error
	if s.format, err = template(cfg.Format, "{ping} {speed_down} {speed_up}", "ping", "speed_down", "speed_up"); err != nil {
		return s, err
	}
	if s.interval, err = intervalOr(cfg.Interval, 30*time.Minute); err != nil {
		return s, err
	}
	if s.timeout, err = intervalOr(cfg.Timeout, 2*time.Minute); err != nil {
		return s, fmt.Errorf("timeout: %w", err)
	}
	return s, nil
}

type speedtestBlock struct {
	textWidget
	settings speedtestSettings

	run func(ctx context.Context, script string, timeout time.Duration) (string, error)
}

func newSpeedtest(_ context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseSpeedtest(p)
	if err != nil {
		return nil, err
	}
	logger := env.Logger()
	return &speedtestBlock{
		textWidget: textWidget{interval: s.interval, widget: block.Widget{Text: "..."}},
		settings:   s,
		run:        shellRunner(logger),
	}, nil
}

func (b *speedtestBlock) Update(ctx context.Context) error {
	out, err := b.run(ctx, b.settings.command, b.settings.timeout)
	if err != nil {
		return fmt.Errorf("speedtest: %w", err)
	}
	if !gjson.Valid(out) {
		return fmt.Errorf("speedtest: invalid JSON output: %q", firstLine(out))
	}

	res := gjson.GetMany(out, "ping", "download", "upload")
	for i, name := range []string{"ping", "download", "upload"} {
		if !res[i].Exists() {
			return fmt.Errorf("speedtest: output has no %q", name)
		}
	}

	text, err := b.settings.format.Render(block.Values{
		"ping":       block.Text(fmt.Sprintf("%.0fms", res[0].Float())),
		"speed_down": block.BitRate(res[1].Float()),
		"speed_up":   block.BitRate(res[2].Float()),
	})
	if err != nil {
		return err
	}
	b.widget = block.Widget{Text: text}
	return nil
}

func (b *speedtestBlock) Click(_ context.Context, c block.Click) (bool, error) {
	return c.Button == block.ButtonLeft, nil
}
