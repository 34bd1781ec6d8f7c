package blocks

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// terminationGracePeriod is how long a command gets between SIGTERM and SIGKILL.
const terminationGracePeriod = 2 * time.Second

const maxStderrBytes = 4 * 1024

// errCommandTimeout is returned when a command outlives its timeout.
var errCommandTimeout = errors.New("command timed out")

// runShell runs script with sh -c in its own process group. On timeout or
// ctx cancellation the group gets SIGTERM, then SIGKILL after the grace
// period. stderr is truncated.
func runShell(ctx context.Context, script string, timeout time.Duration, logger *slog.Logger) (string, string, error) {
	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running command", "command", script, "timeout", timeout)
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var cause error
	select {
	case err := <-waitErr:
		stderrStr := truncateStderr(stderr.String())
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return stdout.String(), stderrStr, fmt.Errorf("exited with status %d: %s", exitErr.ExitCode(), firstLine(stderrStr))
			}
			return stdout.String(), stderrStr, fmt.Errorf("wait for process: %w", err)
		}
		return stdout.String(), stderrStr, nil
	case <-deadline:
		cause = errCommandTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	logger.Warn("terminating command", "command", script, "reason", cause)
	terminate(cmd.Process.Pid, unix.SIGTERM, logger)

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()
	select {
	case <-waitErr:
	case <-grace.C:
		logger.Warn("command did not exit after SIGTERM, sending SIGKILL", "command", script)
		terminate(cmd.Process.Pid, unix.SIGKILL, logger)
		<-waitErr
	}
	return stdout.String(), truncateStderr(stderr.String()), cause
}

// shellRunner adapts runShell to the stdout-only signature blocks inject.
func shellRunner(logger *slog.Logger) func(context.Context, string, time.Duration) (string, error) {
	return func(ctx context.Context, script string, timeout time.Duration) (string, error) {
		out, _, err := runShell(ctx, script, timeout, logger)
		return out, err
	}
}

// streamShell runs a long-lived script and calls onLine for every line it
// prints. It returns when the script exits or ctx is done, in which case the
// process group is stopped the same way runShell stops it.
func streamShell(ctx context.Context, script string, logger *slog.Logger, onLine func(string)) error {
	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	logger.Debug("starting watch command", "command", script)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	exited := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-exited:
			return
		case <-ctx.Done():
		}
		terminate(cmd.Process.Pid, unix.SIGTERM, logger)
		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()
		select {
		case <-exited:
		case <-grace.C:
			logger.Warn("watch command did not exit after SIGTERM, sending SIGKILL", "command", script)
			terminate(cmd.Process.Pid, unix.SIGKILL, logger)
		}
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("watch output unreadable, killing command", "command", script, "error", err)
		terminate(cmd.Process.Pid, unix.SIGKILL, logger)
	}
	waitErr := cmd.Wait()
	close(exited)
	<-stopped

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("exited with status %d: %s", exitErr.ExitCode(), firstLine(truncateStderr(stderr.String())))
		}
		return fmt.Errorf("wait for process: %w", waitErr)
	}
	return nil
}

func terminate(pid int, sig unix.Signal, logger *slog.Logger) {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Error("failed to signal process group", "pid", pid, "signal", sig, "error", err)
	}
}

func truncateStderr(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	return s[:maxStderrBytes] + "\n... (truncated)"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
