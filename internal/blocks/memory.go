package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

var memoryPlaceholders = []string{
	"mem_total", "mem_free", "mem_free_percents", "mem_total_used", "mem_total_used_percents",
	"mem_used", "mem_used_percents", "mem_avail", "mem_avail_percents",
	"swap_total", "swap_free", "swap_free_percents", "swap_used", "swap_used_percents",
	"buffers", "buffers_percent", "cached", "cached_percent",
}

type memoryConfig struct {
	FormatMem    string          `yaml:"format_mem"`
	FormatSwap   string          `yaml:"format_swap"`
	DisplayType  string          `yaml:"display_type"`
	Clickable    *bool           `yaml:"clickable"`
	Interval     config.Duration `yaml:"interval"`
	WarningMem   *float64        `yaml:"warning_mem"`
	CriticalMem  *float64        `yaml:"critical_mem"`
	WarningSwap  *float64        `yaml:"warning_swap"`
	CriticalSwap *float64        `yaml:"critical_swap"`
}

type memorySettings struct {
	formatMem, formatSwap     *block.Template
	swap                      bool
	clickable                 bool
	interval                  time.Duration
	warningMem, criticalMem   float64
	warningSwap, criticalSwap float64
}

func parseMemory(p config.Params) (memorySettings, error) {
	var cfg memoryConfig
	if err := p.Decode(&cfg); err != nil {
		return memorySettings{}, err
	}
	s := memorySettings{
		clickable:    cfg.Clickable == nil || *cfg.Clickable,
		warningMem:   floatOr(cfg.WarningMem, 80),
		criticalMem:  floatOr(cfg.CriticalMem, 95),
		warningSwap:  floatOr(cfg.WarningSwap, 80),
		criticalSwap: floatOr(cfg.CriticalSwap, 95),
	}
	switch cfg.DisplayType {
	case "", "memory":
	case "swap":
		s.swap = true
	default:
		return s, fmt.Errorf("display_type must be memory or swap (got %q)", cfg.DisplayType)
	}

	var err error
	if s.formatMem, err = template(cfg.FormatMem, "{mem_free}/{mem_total}({mem_total_used_percents})", memoryPlaceholders...); err != nil {
		return s, err
	}
	if s.formatSwap, err = template(cfg.FormatSwap, "{swap_free}/{swap_total}({swap_used_percents})", memoryPlaceholders...); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 5*time.Second)
	return s, err
}

type memoryState struct {
	Swap bool `json:"swap"`
}

type memoryBlock struct {
	textWidget
	env      block.Env
	settings memorySettings
	swap     bool

	readMem  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	readSwap func(ctx context.Context) (*mem.SwapMemoryStat, error)
}

func newMemory(ctx context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseMemory(p)
	if err != nil {
		return nil, err
	}
	b := &memoryBlock{
		textWidget: textWidget{interval: s.interval},
		env:        env,
		settings:   s,
		swap:       s.swap,
		readMem:    mem.VirtualMemoryWithContext,
		readSwap:   mem.SwapMemoryWithContext,
	}

	var saved memoryState
	if ok, err := env.LoadState(ctx, &saved); err != nil {
		env.Logger().Warn("failed to load block state", "error", err)
	} else if ok {
		b.swap = saved.Swap
	}
	b.setIcon()
	return b, nil
}

func (b *memoryBlock) setIcon() {
	if b.swap {
		b.widget.Icon = "SWAP"
	} else {
		b.widget.Icon = "MEM"
	}
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

func (b *memoryBlock) Update(ctx context.Context) error {
	vm, err := b.readMem(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory: %w", err)
	}
	sw, err := b.readSwap(ctx)
	if err != nil {
		return fmt.Errorf("failed to read swap: %w", err)
	}

	total := float64(vm.Total)
	totalUsed := float64(vm.Total - vm.Free)
	cached := float64(vm.Cached + vm.Sreclaimable)
	if vm.Shared < vm.Cached+vm.Sreclaimable {
		cached -= float64(vm.Shared)
	}
	used := totalUsed - float64(vm.Buffers) - cached
	if used < 0 {
		used = 0
	}
	avail := total - used
	swapUsed := float64(sw.Total - sw.Free)

	values := block.Values{
		"mem_total":               block.Bytes(vm.Total, true),
		"mem_free":                block.Bytes(vm.Free, true),
		"mem_free_percents":       block.Percent(percentOf(float64(vm.Free), total)),
		"mem_total_used":          block.Bytes(uint64(totalUsed), true),
		"mem_total_used_percents": block.Percent(percentOf(totalUsed, total)),
		"mem_used":                block.Bytes(uint64(used), true),
		"mem_used_percents":       block.Percent(percentOf(used, total)),
		"mem_avail":               block.Bytes(uint64(avail), true),
		"mem_avail_percents":      block.Percent(percentOf(avail, total)),
		"swap_total":              block.Bytes(sw.Total, true),
		"swap_free":               block.Bytes(sw.Free, true),
		"swap_free_percents":      block.Percent(percentOf(float64(sw.Free), float64(sw.Total))),
		"swap_used":               block.Bytes(uint64(swapUsed), true),
		"swap_used_percents":      block.Percent(percentOf(swapUsed, float64(sw.Total))),
		"buffers":                 block.Bytes(vm.Buffers, true),
		"buffers_percent":         block.Percent(percentOf(float64(vm.Buffers), total)),
		"cached":                  block.Bytes(uint64(cached), true),
		"cached_percent":          block.Percent(percentOf(cached, total)),
	}

	format := b.settings.formatMem
	usage, warning, critical := percentOf(used, total), b.settings.warningMem, b.settings.criticalMem
	if b.swap {
		format = b.settings.formatSwap
		usage, warning, critical = percentOf(swapUsed, float64(sw.Total)), b.settings.warningSwap, b.settings.criticalSwap
	}

	text, err := format.Render(values)
	if err != nil {
		return err
	}
	b.widget.Text = text
	switch {
	case usage > critical:
		b.widget.State = block.StateCritical
	case usage > warning:
		b.widget.State = block.StateWarning
	default:
		b.widget.State = block.StateIdle
	}
	return nil
}

func (b *memoryBlock) Click(ctx context.Context, c block.Click) (bool, error) {
	if c.Button != block.ButtonLeft || !b.settings.clickable {
		return false, nil
	}
	b.swap = !b.swap
	b.setIcon()
	if err := b.env.SaveState(ctx, memoryState{Swap: b.swap}); err != nil {
		b.env.Logger().Warn("failed to save block state", "error", err)
	}
	return true, nil
}
