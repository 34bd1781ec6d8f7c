// Package restart replaces the running process with a fresh copy of itself.
package restart

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// NoInitFlag tells the new process the bar header was already written.
const NoInitFlag = "--no-init"

// WithNoInit returns args with NoInitFlag appended unless already present.
// args[0] is the program name and is kept.
func WithNoInit(args []string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, args...)
	for _, a := range args[min(1, len(args)):] {
		if a == NoInitFlag {
			return out
		}
	}
	return append(out, NoInitFlag)
}

// Exec re-executes the current binary with args. It only returns on failure.
func Exec(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	argv := WithNoInit(args)
	if len(argv) == 0 || argv[0] == NoInitFlag {
		argv = append([]string{exe}, argv...)
	}
	if err := unix.Exec(exe, argv, os.Environ()); err != nil {
		return fmt.Errorf("failed to exec %s: %w", exe, err)
	}
	return nil
}
