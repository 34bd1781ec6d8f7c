package signals

// Real-time signal range as seen by programs linked against glibc, which
// reserves the first two kernel real-time signals.
const (
	rtMin = 34
	rtMax = 64
)
