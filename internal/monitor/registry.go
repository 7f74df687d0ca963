package monitor

import (
	"sync"

	"go.uber.org/multierr"
)

var (
	registryMu sync.Mutex
	registry   []*Root
)

// Register adds r to the set closed by Shutdown.
func Register(r *Root) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, r)
}

// Shutdown closes every registered Root and empties the registry. Call it
// on the way out of main and from signal handlers; it is safe to call with
// nothing registered and more than once.
func Shutdown() error {
	registryMu.Lock()
	roots := registry
	registry = nil
	registryMu.Unlock()

	var err error
	for _, r := range roots {
		err = multierr.Append(err, r.Close())
	}
	return err
}
