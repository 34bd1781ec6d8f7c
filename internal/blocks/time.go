package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type timeConfig struct {
	Format      string          `yaml:"format"`
	FormatShort string          `yaml:"format_short"`
	Interval    config.Duration `yaml:"interval"`
	Timezone    string          `yaml:"timezone"`
}

type timeSettings struct {
	format      string
	formatShort string
	interval    time.Duration
	location    *time.Location
}

func parseTime(p config.Params) (timeSettings, error) {
	var cfg timeConfig
	if err := p.Decode(&cfg); err != nil {
		return timeSettings{}, err
	}
	s := timeSettings{format: cfg.Format, formatShort: cfg.FormatShort, location: time.Local}
	if s.format == "" {
		s.format = "%a %d/%m %R"
	}
	var err error
	if s.interval, err = intervalOr(cfg.Interval, 5*time.Second); err != nil {
		return s, err
	}
	if cfg.Timezone != "" {
		if s.location, err = time.LoadLocation(cfg.Timezone); err != nil {
			return s, fmt.Errorf("timezone: %w", err)
		}
	}
	return s, nil
}

type timeBlock struct {
	textWidget
	noClick
	settings timeSettings
	now      func() time.Time
}

func newTime(_ context.Context, _ block.Env, p config.Params) (block.Block, error) {
	s, err := parseTime(p)
	if err != nil {
		return nil, err
	}
	return &timeBlock{
		textWidget: textWidget{interval: s.interval},
		settings:   s,
		now:        time.Now,
	}, nil
}

func (b *timeBlock) Update(context.Context) error {
	t := b.now().In(b.settings.location)
	b.widget.Text = strftime.Format(b.settings.format, t)
	if b.settings.formatShort != "" {
		b.widget.ShortText = strftime.Format(b.settings.formatShort, t)
	}
	return nil
}
