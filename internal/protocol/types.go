// Package protocol speaks the i3bar JSON protocol: a header, then an endless
// array of status lines on stdout, and click events on stdin.
package protocol

// Header is the first line written to the bar.
type Header struct {
	Version     int  `json:"version"`
	ClickEvents bool `json:"click_events"`
	StopSignal  int  `json:"stop_signal,omitempty"`
	ContSignal  int  `json:"cont_signal,omitempty"`
}

// Fragment is one entry of a status line.
type Fragment struct {
	FullText            string `json:"full_text"`
	ShortText           string `json:"short_text,omitempty"`
	Name                string `json:"name"`
	Instance            string `json:"instance,omitempty"`
	Color               string `json:"color,omitempty"`
	Background          string `json:"background,omitempty"`
	Separator           *bool  `json:"separator,omitempty"`
	SeparatorBlockWidth int    `json:"separator_block_width,omitempty"`
}

// ClickEvent is what the bar sends on stdin when a fragment is clicked.
type ClickEvent struct {
	Name     string `json:"name"`
	Instance string `json:"instance"`
	Button   int    `json:"button"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
}
