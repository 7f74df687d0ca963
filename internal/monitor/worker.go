// Package monitor runs a resource sampler in a separate worker process and
// ties it, together with an event logger, to the lifetime of the caller.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
)

const (
	workerEnv       = "RESMON_WORKER"
	workerConfigEnv = "RESMON_WORKER_CONFIG"

	// stopGrace is how long Stop waits after SIGTERM before killing.
	stopGrace = 2 * time.Second
)

// WorkerOptions configures a resource worker.
type WorkerOptions struct {
	PIDs     []int32 // defaults to the calling process
	Output   string  // empty writes to the caller's stdout
	Interval time.Duration
	GPUIDs   []int
	LogLevel string
}

type workerConfig struct {
	PIDs     []int32       `json:"pids"`
	Output   string        `json:"output"`
	Interval time.Duration `json:"interval"`
	GPUIDs   []int         `json:"gpu_ids"`
	LogLevel string        `json:"log_level"`
}

// readyMsg is the single message a worker sends once its sampler is built.
type readyMsg struct {
	OK    bool   `json:"ok"`
	PID   int    `json:"pid,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// WorkerError is a startup failure reported by the worker. It unwraps to the
// errdefs sentinel the worker saw, when there was one.
type WorkerError struct {
	Msg  string
	kind error
}

func (e *WorkerError) Error() string { return "resource worker: " + e.Msg }
func (e *WorkerError) Unwrap() error { return e.kind }

// Worker is a running resource sampler process.
type Worker struct {
	cmd   *exec.Cmd
	stopW *os.File
	log   *zap.Logger

	done    chan struct{}
	waitErr error

	once    sync.Once
	stopErr error
}

// StartWorker re-executes the current binary as a resource worker and blocks
// until the worker has calibrated its sampler. Configuration errors raised
// in the worker are returned here. The binary must call
// RunWorkerIfRequested early in main.
func StartWorker(ctx context.Context, opts WorkerOptions) (*Worker, error) {
	cfg := workerConfig{
		PIDs:     opts.PIDs,
		Output:   opts.Output,
		Interval: opts.Interval,
		GPUIDs:   opts.GPUIDs,
		LogLevel: opts.LogLevel,
	}
	if len(cfg.PIDs) == 0 {
		cfg.PIDs = []int32{int32(os.Getpid())}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stopR, stopW, err := os.Pipe()
	if err != nil {
		readyR.Close()
		readyW.Close()
		return nil, err
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), workerEnv+"=1", workerConfigEnv+"="+string(raw))
	// fd 3, fd 4. The stop pipe also reports parent death: the worker
	// reads EOF once every copy of stopW is closed.
	cmd.ExtraFiles = []*os.File{readyW, stopR}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Start()
	readyW.Close()
	stopR.Close()
	if err != nil {
		readyR.Close()
		stopW.Close()
		return nil, fmt.Errorf("start resource worker: %w", err)
	}

	w := &Worker{
		cmd:   cmd,
		stopW: stopW,
		log:   logutil.GetLogger().Named("monitor").With(zap.Int("worker_pid", cmd.Process.Pid)),
		done:  make(chan struct{}),
	}
	go func() {
		w.waitErr = cmd.Wait()
		close(w.done)
	}()

	msg, err := awaitReady(ctx, readyR)
	readyR.Close()
	if err != nil {
		w.kill()
		return nil, err
	}
	if !msg.OK {
		<-w.done
		stopW.Close()
		return nil, &WorkerError{Msg: msg.Error, kind: errdefs.FromKind(msg.Kind)}
	}
	w.log.Info("resource worker ready", zap.Duration("interval", opts.Interval), zap.String("output", opts.Output))
	return w, nil
}

func awaitReady(ctx context.Context, r *os.File) (readyMsg, error) {
	type result struct {
		msg readyMsg
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var msg readyMsg
		err := json.NewDecoder(r).Decode(&msg)
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		if errors.Is(res.err, io.EOF) || errors.Is(res.err, io.ErrUnexpectedEOF) {
			return readyMsg{}, errors.New("resource worker exited before signalling readiness")
		}
		if res.err != nil {
			return readyMsg{}, fmt.Errorf("read worker readiness: %w", res.err)
		}
		return res.msg, nil
	case <-ctx.Done():
		return readyMsg{}, ctx.Err()
	}
}

// Pid is the worker's process id.
func (w *Worker) Pid() int { return w.cmd.Process.Pid }

// Done is closed once the worker process has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Running reports whether the worker process has not exited yet.
func (w *Worker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Stop sets the worker's stop flag and terminates it. SIGTERM cancels the
// worker's sampling loop between rows and its output is flushed on the way
// out. A worker still running after a grace period is killed. Stop is safe
// to call more than once.
func (w *Worker) Stop() error {
	w.once.Do(func() {
		w.stopW.Write([]byte{1})
		w.stopW.Close()

		select {
		case <-w.done:
			// ended on its own: targets gone or setup already failed
			w.stopErr = w.waitErr
			return
		default:
		}
		if err := terminate(w.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			w.log.Warn("terminate resource worker", zap.Error(err))
		}
		select {
		case <-w.done:
			w.stopErr = w.waitErr
			w.log.Info("resource worker stopped")
		case <-time.After(stopGrace):
			w.log.Warn("resource worker ignored SIGTERM, killing")
			w.kill()
		}
	})
	return w.stopErr
}

func (w *Worker) kill() {
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		w.log.Error("kill resource worker", zap.Error(err))
	}
	<-w.done
	w.stopW.Close()
}
