//go:build !linux

package signals

// No real-time signals; numbered refreshes are only reachable via the API.
const (
	rtMin = 0
	rtMax = 0
)
