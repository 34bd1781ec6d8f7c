package dispatch

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/mattjoyce/barline/internal/log"
)

// SpawnDetached starts cmd with sh -c in its own process group and reaps it
// in the background. It does not wait for the command to finish.
func SpawnDetached(cmd string) error {
	c := exec.Command("sh", "-c", cmd)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := c.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmd, err)
	}
	go func() {
		if err := c.Wait(); err != nil {
			log.WithComponent("dispatch").Debug("on_click command exited", "command", cmd, "error", err)
		}
	}()
	return nil
}
