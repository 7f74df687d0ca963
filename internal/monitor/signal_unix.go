//go:build unix

package monitor

import (
	"os"

	"golang.org/x/sys/unix"
)

var terminationSignals = []os.Signal{unix.SIGTERM, unix.SIGINT}

// terminate sends SIGTERM. It returns os.ErrProcessDone once the process
// has been waited for.
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
