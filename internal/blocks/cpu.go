package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type cpuConfig struct {
	Format   string          `yaml:"format"`
	Interval config.Duration `yaml:"interval"`
	Info     *float64        `yaml:"info"`
	Warning  *float64        `yaml:"warning"`
	Critical *float64        `yaml:"critical"`
}

type cpuSettings struct {
	format                  *block.Template
	interval                time.Duration
	info, warning, critical float64
}

func parseCPU(p config.Params) (cpuSettings, error) {
	var cfg cpuConfig
	if err := p.Decode(&cfg); err != nil {
		return cpuSettings{}, err
	}
	s := cpuSettings{
		info:     floatOr(cfg.Info, 30),
		warning:  floatOr(cfg.Warning, 60),
		critical: floatOr(cfg.Critical, 90),
	}
	var err error
	if s.format, err = template(cfg.Format, "{utilization}", "utilization", "max_core"); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 5*time.Second)
	return s, err
}

type cpuBlock struct {
	textWidget
	noClick
	settings cpuSettings
	// read returns per-core utilization since the previous call.
	read func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
}

func newCPU(_ context.Context, _ block.Env, p config.Params) (block.Block, error) {
	s, err := parseCPU(p)
	if err != nil {
		return nil, err
	}
	return &cpuBlock{
		textWidget: textWidget{interval: s.interval, widget: block.Widget{Icon: "CPU"}},
		settings:   s,
		read:       cpu.PercentWithContext,
	}, nil
}

func (b *cpuBlock) Update(ctx context.Context) error {
	perCore, err := b.read(ctx, 0, true)
	if err != nil {
		return fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(perCore) == 0 {
		return fmt.Errorf("no cpu usage reported")
	}

	var sum, maxCore float64
	for _, v := range perCore {
		sum += v
		if v > maxCore {
			maxCore = v
		}
	}
	utilization := sum / float64(len(perCore))

	text, err := b.settings.format.Render(block.Values{
		"utilization": block.Percent(utilization),
		"max_core":    block.Percent(maxCore),
	})
	if err != nil {
		return err
	}
	b.widget.Text = text
	b.widget.State = block.StateFor(utilization, b.settings.info, b.settings.warning, b.settings.critical)
	return nil
}
