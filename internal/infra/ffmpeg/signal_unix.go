//go:build !windows

package ffmpeg

import (
	"os"
	"syscall"
)

func suspend(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func resume(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}

// terminate asks the process to exit. A stopped process cannot handle
// SIGTERM, so it is continued first.
func terminate(p *os.Process) error {
	_ = p.Signal(syscall.SIGCONT)
	return p.Signal(syscall.SIGTERM)
}
