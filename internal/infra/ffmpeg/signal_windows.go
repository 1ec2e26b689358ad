//go:build windows

package ffmpeg

import (
	"os"

	"github.com/cockroachdb/errors"
)

var errUnsupported = errors.New("pause is not supported on windows")

func suspend(*os.Process) error {
	return errUnsupported
}

func resume(*os.Process) error {
	return errUnsupported
}

func terminate(p *os.Process) error {
	return p.Kill()
}
