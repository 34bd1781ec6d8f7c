// Package signals turns OS signals into bar control events.
//
// SIGUSR1 refreshes every block, SIGUSR2 reloads the process, and
// SIGRTMIN+n refreshes the blocks configured with signal = n.
package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Kind is the type of a control signal.
type Kind int

const (
	RefreshAll Kind = iota
	Reload
	Numbered
)

func (k Kind) String() string {
	switch k {
	case RefreshAll:
		return "refresh"
	case Reload:
		return "reload"
	case Numbered:
		return "numbered"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Signal is one control event. N is set only for Numbered.
type Signal struct {
	Kind Kind
	N    int
}

func (s Signal) String() string {
	if s.Kind == Numbered {
		return strconv.Itoa(s.N)
	}
	return s.Kind.String()
}

// Parse reads the textual form used by the CLI and API: "refresh",
// "reload", or a non-negative number.
func Parse(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "refresh", "usr1":
		return Signal{Kind: RefreshAll}, nil
	case "reload", "usr2":
		return Signal{Kind: Reload}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return Signal{}, fmt.Errorf("invalid signal %q (want refresh, reload or a number)", s)
	}
	if hi := MaxNumbered(); hi >= 0 && n > hi {
		return Signal{}, fmt.Errorf("signal number %d out of range 0..%d", n, hi)
	}
	return Signal{Kind: Numbered, N: n}, nil
}

// MaxNumbered is the highest block signal number this platform can
// deliver, or -1 when real-time signals are unavailable. SIGRTMAX itself
// is not used.
func MaxNumbered() int {
	if rtMax <= rtMin {
		return -1
	}
	return rtMax - rtMin - 1
}

// FromOS maps an OS signal to a control signal.
func FromOS(sig os.Signal) (Signal, bool) {
	s, ok := sig.(unix.Signal)
	if !ok {
		return Signal{}, false
	}
	switch {
	case s == unix.SIGUSR1:
		return Signal{Kind: RefreshAll}, true
	case s == unix.SIGUSR2:
		return Signal{Kind: Reload}, true
	case rtMax > rtMin && int(s) >= rtMin && int(s) < rtMax:
		return Signal{Kind: Numbered, N: int(s) - rtMin}, true
	default:
		return Signal{}, false
	}
}

// ToOS is the inverse of FromOS.
func ToOS(s Signal) (unix.Signal, error) {
	switch s.Kind {
	case RefreshAll:
		return unix.SIGUSR1, nil
	case Reload:
		return unix.SIGUSR2, nil
	case Numbered:
		if s.N < 0 || s.N > MaxNumbered() {
			return 0, fmt.Errorf("signal %d not supported on this platform", s.N)
		}
		return unix.Signal(rtMin + s.N), nil
	default:
		return 0, fmt.Errorf("unknown signal kind %v", s.Kind)
	}
}

func watched() []os.Signal {
	sigs := []os.Signal{unix.SIGUSR1, unix.SIGUSR2}
	if rtMax > rtMin {
		for n := rtMin; n < rtMax; n++ {
			sigs = append(sigs, unix.Signal(n))
		}
	}
	return sigs
}

// Notify starts delivering control signals. The stream ends when ctx is done.
func Notify(ctx context.Context) <-chan Signal {
	raw := make(chan os.Signal, 16)
	signal.Notify(raw, watched()...)

	out := make(chan Signal)
	go func() {
		defer close(out)
		defer signal.Stop(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-raw:
				s, ok := FromOS(sig)
				if !ok {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Merge fans several signal streams into one. The result closes after all
// sources close or ctx is done.
func Merge(ctx context.Context, sources ...<-chan Signal) <-chan Signal {
	out := make(chan Signal)
	var wg sync.WaitGroup
	for _, src := range sources {
		if src == nil {
			continue
		}
		wg.Add(1)
		go func(src <-chan Signal) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case s, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- s:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// FromTrigger converts a bare notification stream, such as the config
// watcher's, into signals of one kind.
func FromTrigger(ctx context.Context, trigger <-chan struct{}, s Signal) <-chan Signal {
	out := make(chan Signal)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-trigger:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
