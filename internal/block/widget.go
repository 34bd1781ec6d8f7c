package block

import "fmt"

// State selects the theme colors for a widget.
type State int

const (
	StateIdle State = iota
	StateInfo
	StateGood
	StateWarning
	StateCritical
)

var stateNames = [...]string{"idle", "info", "good", "warning", "critical"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState converts a state name to a State.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown state %q", s)
}

// Widget is one rendered fragment of a block.
type Widget struct {
	Text      string
	ShortText string
	Icon      string
	State     State
	// Instance distinguishes widgets of one block in click events.
	Instance string
}

// FullText joins the icon and text the way the bar shows them.
func (w Widget) FullText() string {
	if w.Icon == "" {
		return w.Text
	}
	if w.Text == "" {
		return w.Icon
	}
	return w.Icon + " " + w.Text
}

// ErrorWidget renders an operation failure in place of a block's view.
func ErrorWidget(err error) Widget {
	return Widget{
		Text:      "Error: " + err.Error(),
		ShortText: "Error",
		State:     StateCritical,
	}
}

// StateFor picks the state of value against ascending thresholds. Zero
// thresholds are ignored.
func StateFor(value, info, warning, critical float64) State {
	switch {
	case critical > 0 && value >= critical:
		return StateCritical
	case warning > 0 && value >= warning:
		return StateWarning
	case info > 0 && value >= info:
		return StateInfo
	default:
		return StateIdle
	}
}
