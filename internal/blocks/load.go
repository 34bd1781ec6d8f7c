package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type loadConfig struct {
	Format   string          `yaml:"format"`
	Interval config.Duration `yaml:"interval"`
	Info     *float64        `yaml:"info"`
	Warning  *float64        `yaml:"warning"`
	Critical *float64        `yaml:"critical"`
}

type loadSettings struct {
	format                  *block.Template
	interval                time.Duration
	info, warning, critical float64
}

func parseLoad(p config.Params) (loadSettings, error) {
	var cfg loadConfig
	if err := p.Decode(&cfg); err != nil {
		return loadSettings{}, err
	}
	s := loadSettings{
		info:     floatOr(cfg.Info, 0.3),
		warning:  floatOr(cfg.Warning, 0.6),
		critical: floatOr(cfg.Critical, 0.9),
	}
	var err error
	if s.format, err = template(cfg.Format, "{1m}", "1m", "5m", "15m"); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 5*time.Second)
	return s, err
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

type loadBlock struct {
	textWidget
	noClick
	settings loadSettings
	cores    int
	read     func(ctx context.Context) (*load.AvgStat, error)
}

func newLoad(ctx context.Context, _ block.Env, p config.Params) (block.Block, error) {
	s, err := parseLoad(p)
	if err != nil {
		return nil, err
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count logical cores: %w", err)
	}
	if cores < 1 {
		cores = 1
	}
	return &loadBlock{
		textWidget: textWidget{interval: s.interval, widget: block.Widget{State: block.StateInfo}},
		settings:   s,
		cores:      cores,
		read:       load.AvgWithContext,
	}, nil
}

func (b *loadBlock) Update(ctx context.Context) error {
	avg, err := b.read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read load average: %w", err)
	}
	text, err := b.settings.format.Render(block.Values{
		"1m":  block.Number(avg.Load1, 2),
		"5m":  block.Number(avg.Load5, 2),
		"15m": block.Number(avg.Load15, 2),
	})
	if err != nil {
		return err
	}
	b.widget.Text = text

	perCore := avg.Load1 / float64(b.cores)
	switch {
	case perCore > b.settings.critical:
		b.widget.State = block.StateCritical
	case perCore > b.settings.warning:
		b.widget.State = block.StateWarning
	case perCore > b.settings.info:
		b.widget.State = block.StateInfo
	default:
		b.widget.State = block.StateIdle
	}
	return nil
}
