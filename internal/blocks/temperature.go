package blocks

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

// Readings outside this range (celsius) are sensor noise.
const (
	minPlausibleCelsius = -100.0
	maxPlausibleCelsius = 150.0
)

type temperatureConfig struct {
	Interval  config.Duration `yaml:"interval"`
	Collapsed *bool           `yaml:"collapsed"`
	Scale     string          `yaml:"scale"`
	Good      *float64        `yaml:"good"`
	Idle      *float64        `yaml:"idle"`
	Info      *float64        `yaml:"info"`
	Warning   *float64        `yaml:"warning"`
	Format    string          `yaml:"format"`
	Chip      string          `yaml:"chip"`
	Inputs    []string        `yaml:"inputs"`
}

type temperatureSettings struct {
	interval                  time.Duration
	collapsed                 bool
	fahrenheit                bool
	good, idle, info, warning float64
	format                    *block.Template
	chip                      string
	inputs                    []string
}

func parseTemperature(p config.Params) (temperatureSettings, error) {
	var cfg temperatureConfig
	if err := p.Decode(&cfg); err != nil {
		return temperatureSettings{}, err
	}
	s := temperatureSettings{
		collapsed: cfg.Collapsed == nil || *cfg.Collapsed,
		chip:      cfg.Chip,
	}
	for _, in := range cfg.Inputs {
		s.inputs = append(s.inputs, sensorKey(in))
	}

	switch cfg.Scale {
	case "", "celsius":
		s.good, s.idle, s.info, s.warning = 20, 45, 60, 80
	case "fahrenheit":
		s.fahrenheit = true
		s.good, s.idle, s.info, s.warning = 68, 113, 140, 176
	default:
		return s, fmt.Errorf("scale must be celsius or fahrenheit (got %q)", cfg.Scale)
	}
	s.good = floatOr(cfg.Good, s.good)
	s.idle = floatOr(cfg.Idle, s.idle)
	s.info = floatOr(cfg.Info, s.info)
	s.warning = floatOr(cfg.Warning, s.warning)

	var err error
	if s.format, err = template(cfg.Format, "{average} avg, {max} max", "average", "min", "max"); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 5*time.Second)
	return s, err
}

// sensorKey normalizes a label the way gopsutil builds sensor keys.
func sensorKey(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}

type temperatureState struct {
	Collapsed bool `json:"collapsed"`
}

type temperatureBlock struct {
	textWidget
	env       block.Env
	settings  temperatureSettings
	collapsed bool
	read      func(ctx context.Context) ([]sensors.TemperatureStat, error)
}

func newTemperature(ctx context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseTemperature(p)
	if err != nil {
		return nil, err
	}
	b := &temperatureBlock{
		textWidget: textWidget{interval: s.interval},
		env:        env,
		settings:   s,
		collapsed:  s.collapsed,
		read:       sensors.TemperaturesWithContext,
	}
	var saved temperatureState
	if ok, err := env.LoadState(ctx, &saved); err != nil {
		env.Logger().Warn("failed to load block state", "error", err)
	} else if ok {
		b.collapsed = saved.Collapsed
	}
	return b, nil
}

func (b *temperatureBlock) selected(key string) bool {
	key = sensorKey(key)
	if b.settings.chip != "" && !strings.HasPrefix(key, sensorKey(b.settings.chip)) {
		return false
	}
	if len(b.settings.inputs) == 0 {
		return true
	}
	for _, in := range b.settings.inputs {
		if strings.HasSuffix(key, in) {
			return true
		}
	}
	return false
}

func (b *temperatureBlock) Update(ctx context.Context) error {
	stats, err := b.read(ctx)
	// gopsutil returns partial readings alongside a warning error.
	if err != nil && len(stats) == 0 {
		return fmt.Errorf("failed to read sensors: %w", err)
	}

	var temps []float64
	for _, st := range stats {
		if !b.selected(st.SensorKey) {
			continue
		}
		c := st.Temperature
		if c < minPlausibleCelsius || c >= maxPlausibleCelsius {
			b.env.Logger().Debug("discarding implausible temperature", "sensor", st.SensorKey, "value", c)
			continue
		}
		if b.settings.fahrenheit {
			c = c*9/5 + 32
		}
		temps = append(temps, c)
	}
	if len(temps) == 0 {
		return nil
	}

	minT, maxT, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, t := range temps {
		minT = math.Min(minT, t)
		maxT = math.Max(maxT, t)
		sum += t
	}

	if b.collapsed {
		b.widget.Text = ""
	} else {
		unit := "C"
		if b.settings.fahrenheit {
			unit = "F"
		}
		text, err := b.settings.format.Render(block.Values{
			"average": block.Degrees(sum/float64(len(temps)), unit),
			"min":     block.Degrees(minT, unit),
			"max":     block.Degrees(maxT, unit),
		})
		if err != nil {
			return err
		}
		b.widget.Text = text
	}

	switch {
	case maxT <= b.settings.good:
		b.widget.State = block.StateGood
	case maxT <= b.settings.idle:
		b.widget.State = block.StateIdle
	case maxT <= b.settings.info:
		b.widget.State = block.StateInfo
	case maxT <= b.settings.warning:
		b.widget.State = block.StateWarning
	default:
		b.widget.State = block.StateCritical
	}
	return nil
}

func (b *temperatureBlock) Click(ctx context.Context, c block.Click) (bool, error) {
	if c.Button != block.ButtonLeft {
		return false, nil
	}
	b.collapsed = !b.collapsed
	if err := b.env.SaveState(ctx, temperatureState{Collapsed: b.collapsed}); err != nil {
		b.env.Logger().Warn("failed to save block state", "error", err)
	}
	return true, nil
}
