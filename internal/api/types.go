package api

import "time"

// BlockResponse is one entry of GET /blocks.
type BlockResponse struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	State     string     `json:"state"`
	LastError string     `json:"last_error,omitempty"`
	NextDue   *time.Time `json:"next_due,omitempty"`
	Signal    *int       `json:"signal,omitempty"`
	Runs      int        `json:"runs"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Text      string     `json:"text"`
}

// AcceptedResponse is returned when a request was queued.
type AcceptedResponse struct {
	Status string `json:"status"`
	Target string `json:"target"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RunID         string `json:"run_id,omitempty"`
	ConfigHash    string `json:"config_hash,omitempty"`
	Version       string `json:"version,omitempty"`
	Blocks        int    `json:"blocks"`
	Subscribers   int    `json:"event_subscribers"`
}
