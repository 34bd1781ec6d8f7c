// Package blocks holds the built-in block types.
package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type definition struct {
	tag string
	def block.Definition
}

func all() []definition {
	return []definition{
		{"time", block.Definition{Description: "Current time (strftime format)", New: newTime, Check: checkWith(parseTime)}},
		{"uptime", block.Definition{Description: "System uptime", New: newUptime, Check: checkWith(parseUptime)}},
		{"load", block.Definition{Description: "Load average relative to logical cores", New: newLoad, Check: checkWith(parseLoad)}},
		{"memory", block.Definition{Description: "Memory or swap usage, toggled by click", New: newMemory, Check: checkWith(parseMemory)}},
		{"cpu", block.Definition{Description: "CPU utilization", New: newCPU, Check: checkWith(parseCPU)}},
		{"disk_space", block.Definition{Description: "Filesystem usage for a path", New: newDiskSpace, Check: checkWith(parseDiskSpace)}},
		{"temperature", block.Definition{Description: "Hardware temperature sensors", New: newTemperature, Check: checkWith(parseTemperature)}},
		{"custom", block.Definition{Description: "Output of a shell command", New: newCustom, Check: checkWith(parseCustom), OverridesClick: true}},
		{"github", block.Definition{Description: "Unread GitHub notifications", New: newGithub, Check: checkWith(parseGithub)}},
		{"text", block.Definition{Description: "Static text", New: newText, Check: checkWith(parseText)}},
		{"apt", block.Definition{Description: "Pending apt package upgrades", New: newApt, Check: checkWith(parseApt)}},
		{"speedtest", block.Definition{Description: "Ping and bandwidth from speedtest-cli", New: newSpeedtest, Check: checkWith(parseSpeedtest)}},
	}
}

// Register adds every built-in block type to r.
func Register(r *block.Registry) error {
	for _, d := range all() {
		if err := r.Register(d.tag, d.def); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry with the built-in block types.
func NewRegistry() *block.Registry {
	r := block.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

// Describe returns tag to description for every built-in block.
func Describe() map[string]string {
	out := make(map[string]string)
	for _, d := range all() {
		out[d.tag] = d.def.Description
	}
	return out
}

func checkWith[T any](parse func(config.Params) (T, error)) func(config.Params) error {
	return func(p config.Params) error {
		_, err := parse(p)
		return err
	}
}

// template parses a format option, falling back to def, and checks it only
// uses known placeholders.
func template(format, def string, known ...string) (*block.Template, error) {
	if format == "" {
		format = def
	}
	t, err := block.ParseTemplate(format)
	if err != nil {
		return nil, err
	}
	if err := t.Check(known...); err != nil {
		return nil, err
	}
	return t, nil
}

func intervalOr(d config.Duration, def time.Duration) (time.Duration, error) {
	if d.Duration == 0 {
		return def, nil
	}
	if d.Duration < 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d.Duration, nil
}

// textWidget is the single-widget state most blocks share.
type textWidget struct {
	widget   block.Widget
	hidden   bool
	interval time.Duration
}

func (t *textWidget) Interval() (time.Duration, bool) {
	return t.interval, t.interval > 0
}

func (t *textWidget) View() []block.Widget {
	if t.hidden {
		return nil
	}
	return []block.Widget{t.widget}
}

// noClick is embedded by blocks that ignore clicks.
type noClick struct{}

func (noClick) Click(_ context.Context, _ block.Click) (bool, error) { return false, nil }
