//go:build !unix

package monitor

import "os"

var terminationSignals = []os.Signal{os.Interrupt}

func terminate(p *os.Process) error {
	return p.Kill()
}
