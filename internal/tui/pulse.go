package tui

import (
	"strings"
	"time"
)

// Pulse shows emit activity with a decaying dot pattern. It lights up on
// every snapshot and fades over time.
type Pulse struct {
	dots      int
	lastEvent time.Time
}

const pulseWidth = 5

func (p *Pulse) OnEmit(now time.Time) {
	p.dots = pulseWidth
	p.lastEvent = now
}

// Decay fades the dots based on time since the last snapshot.
func (p *Pulse) Decay(now time.Time) {
	if p.dots == 0 {
		return
	}
	elapsed := now.Sub(p.lastEvent)
	switch {
	case elapsed > 10*time.Second:
		p.dots = 0
	case elapsed > 8*time.Second:
		p.dots = 1
	case elapsed > 6*time.Second:
		p.dots = 2
	case elapsed > 4*time.Second:
		p.dots = 3
	case elapsed > 2*time.Second:
		p.dots = 4
	}
}

func (p Pulse) Render(theme Theme) string {
	var b strings.Builder
	for i := range pulseWidth {
		if i < p.dots {
			b.WriteString(theme.PulseOn.Render("●"))
		} else {
			b.WriteString(theme.PulseOff.Render("○"))
		}
	}
	return b.String()
}
