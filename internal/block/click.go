package block

// Button is an i3bar mouse button number.
type Button int

const (
	ButtonLeft      Button = 1
	ButtonMiddle    Button = 2
	ButtonRight     Button = 3
	ButtonWheelUp   Button = 4
	ButtonWheelDown Button = 5
	ButtonBack      Button = 8
	ButtonForward   Button = 9
)

// Invert swaps the wheel directions. Other buttons are unchanged.
func (b Button) Invert() Button {
	switch b {
	case ButtonWheelUp:
		return ButtonWheelDown
	case ButtonWheelDown:
		return ButtonWheelUp
	default:
		return b
	}
}

// Click is a click on the widget of block ID.
type Click struct {
	ID       int
	Button   Button
	Instance string
}
