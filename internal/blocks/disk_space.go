package blocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

var diskUnits = map[string]float64{
	"TB": 1 << 40,
	"GB": 1 << 30,
	"MB": 1 << 20,
	"KB": 1 << 10,
	"B":  1,
}

type diskSpaceConfig struct {
	Path          string          `yaml:"path"`
	InfoType      string          `yaml:"info_type"`
	Unit          string          `yaml:"unit"`
	Format        string          `yaml:"format"`
	Interval      config.Duration `yaml:"interval"`
	Warning       *float64        `yaml:"warning"`
	Alert         *float64        `yaml:"alert"`
	AlertAbsolute bool            `yaml:"alert_absolute"`
}

type diskSpaceSettings struct {
	path           string
	infoType       string
	unit           float64
	format         *block.Template
	interval       time.Duration
	warning, alert float64
	alertAbsolute  bool
}

func parseDiskSpace(p config.Params) (diskSpaceSettings, error) {
	var cfg diskSpaceConfig
	if err := p.Decode(&cfg); err != nil {
		return diskSpaceSettings{}, err
	}
	s := diskSpaceSettings{
		path:          expandPath(cfg.Path),
		infoType:      cfg.InfoType,
		warning:       floatOr(cfg.Warning, 20),
		alert:         floatOr(cfg.Alert, 10),
		alertAbsolute: cfg.AlertAbsolute,
	}
	if s.path == "" {
		s.path = "/"
	}
	switch s.infoType {
	case "":
		s.infoType = "available"
	case "available", "free", "used":
	default:
		return s, fmt.Errorf("info_type must be available, free or used (got %q)", cfg.InfoType)
	}

	unit := cfg.Unit
	if unit == "" {
		unit = "GB"
	}
	var ok bool
	if s.unit, ok = diskUnits[unit]; !ok {
		return s, fmt.Errorf("unknown unit %q", unit)
	}

	var err error
	if s.format, err = template(cfg.Format, "{available}", "percentage", "path", "total", "used", "available", "free"); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 20*time.Second)
	return s, err
}

// expandPath expands environment variables and a leading ~.
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

type diskSpaceBlock struct {
	textWidget
	noClick
	settings diskSpaceSettings
	read     func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func newDiskSpace(_ context.Context, _ block.Env, p config.Params) (block.Block, error) {
	s, err := parseDiskSpace(p)
	if err != nil {
		return nil, err
	}
	return &diskSpaceBlock{
		textWidget: textWidget{interval: s.interval},
		settings:   s,
		read:       disk.UsageWithContext,
	}, nil
}

func (b *diskSpaceBlock) Update(ctx context.Context) error {
	usage, err := b.read(ctx, b.settings.path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", b.settings.path, err)
	}

	// gopsutil reports Free as space available to unprivileged users.
	total := usage.Total
	used := usage.Used
	available := usage.Free
	free := total - used

	var result float64
	above := false
	switch b.settings.infoType {
	case "available":
		result = float64(available)
	case "free":
		result = float64(free)
	case "used":
		result = float64(used)
		above = true
	}
	percentage := percentOf(result, float64(total))

	text, err := b.settings.format.Render(block.Values{
		"percentage": block.Percent(percentage),
		"path":       block.Text(b.settings.path),
		"total":      block.Bytes(total, true),
		"used":       block.Bytes(used, true),
		"available":  block.Bytes(available, true),
		"free":       block.Bytes(free, true),
	})
	if err != nil {
		return err
	}
	b.widget.Text = text

	value := percentage
	if b.settings.alertAbsolute {
		value = result / b.settings.unit
	}
	b.widget.State = diskState(value, b.settings.warning, b.settings.alert, above)
	return nil
}

// diskState grades value against the thresholds. For used space high is
// bad; for available or free space low is bad.
func diskState(value, warning, alert float64, above bool) block.State {
	if above {
		switch {
		case value > alert:
			return block.StateCritical
		case value > warning:
			return block.StateWarning
		default:
			return block.StateIdle
		}
	}
	switch {
	case value >= 0 && value < alert:
		return block.StateCritical
	case value >= alert && value < warning:
		return block.StateWarning
	default:
		return block.StateIdle
	}
}
