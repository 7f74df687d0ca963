package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/events"
	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
)

// Root owns the resource worker and the event logger of one program. Create
// it once at startup and hand it to the code that records events.
type Root struct {
	mu       sync.Mutex
	pid      int
	resource *Worker
	events   *events.Logger
	log      *zap.Logger
}

// NewRoot returns an empty Root registered for Shutdown.
func NewRoot() *Root {
	r := &Root{pid: os.Getpid(), log: logutil.GetLogger().Named("monitor")}
	Register(r)
	return r
}

// DefaultResourceOutput is the resource log path used when none is given.
func (r *Root) DefaultResourceOutput() string {
	return fmt.Sprintf("resource_monitor_PID%d.log", r.pid)
}

// DefaultEventOutput is the event log path used when none is given.
func (r *Root) DefaultEventOutput() string {
	return fmt.Sprintf("event_monitor_PID%d.log", r.pid)
}

// StartResourceMonitor starts a worker sampling this process (unless
// opts.PIDs says otherwise) and returns once it is calibrated. A worker
// started by an earlier call is stopped first.
func (r *Root) StartResourceMonitor(ctx context.Context, opts WorkerOptions) error {
	if opts.Output == "" {
		opts.Output = r.DefaultResourceOutput()
	}
	r.mu.Lock()
	prev := r.resource
	r.resource = nil
	r.mu.Unlock()
	if prev != nil {
		r.log.Info("replacing resource worker", zap.Int("worker_pid", prev.Pid()))
		if err := prev.Stop(); err != nil {
			r.log.Warn("previous resource worker exited with error", zap.Error(err))
		}
	}

	w, err := StartWorker(ctx, opts)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.resource = w
	r.mu.Unlock()
	return nil
}

// Worker returns the running resource worker, or nil.
func (r *Root) Worker() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resource
}

// StartEventMonitor installs a fresh event logger writing to path (the
// default path when empty). A previous logger is closed.
func (r *Root) StartEventMonitor(path string) (*events.Logger, error) {
	if path == "" {
		path = r.DefaultEventOutput()
	}
	l := events.New(path)
	r.mu.Lock()
	prev := r.events
	r.events = l
	r.mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			return l, err
		}
	}
	return l, nil
}

// Events returns the event logger, creating one at the default path on
// first use.
func (r *Root) Events() *events.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = events.New(r.DefaultEventOutput())
	}
	return r.events
}

// Region starts a timed region on the event logger.
func (r *Root) Region(name string) *events.Token {
	return r.Events().Region(name)
}

// Close stops the resource worker and closes the event logger. Either may be
// unset; calling Close again is a no-op.
func (r *Root) Close() error {
	r.mu.Lock()
	w, l := r.resource, r.events
	r.resource, r.events = nil, nil
	r.mu.Unlock()

	var err error
	if w != nil {
		err = multierr.Append(err, w.Stop())
	}
	if l != nil {
		err = multierr.Append(err, l.Close())
	}
	return err
}
