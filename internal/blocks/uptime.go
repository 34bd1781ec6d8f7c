package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type uptimeConfig struct {
	Interval config.Duration `yaml:"interval"`
}

func parseUptime(p config.Params) (time.Duration, error) {
	var cfg uptimeConfig
	if err := p.Decode(&cfg); err != nil {
		return 0, err
	}
	return intervalOr(cfg.Interval, 60*time.Second)
}

type uptimeBlock struct {
	textWidget
	noClick
	read func(ctx context.Context) (uint64, error)
}

func newUptime(_ context.Context, _ block.Env, p config.Params) (block.Block, error) {
	interval, err := parseUptime(p)
	if err != nil {
		return nil, err
	}
	return &uptimeBlock{
		textWidget: textWidget{interval: interval},
		read:       host.UptimeWithContext,
	}, nil
}

func (b *uptimeBlock) Update(ctx context.Context) error {
	secs, err := b.read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read uptime: %w", err)
	}
	b.widget.Text = formatUptime(secs)
	return nil
}

// formatUptime shows the two largest non-trivial units.
func formatUptime(total uint64) string {
	weeks := total / 604800
	days := total % 604800 / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case weeks == 0 && days == 0 && hours == 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	case weeks == 0 && days == 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case weeks == 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days == 0:
		return fmt.Sprintf("%dw %dh", weeks, hours)
	default:
		return fmt.Sprintf("%dw %dd", weeks, days)
	}
}
