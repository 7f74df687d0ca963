package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/report"
)

func TestMain(m *testing.M) {
	RunWorkerIfRequested()
	os.Exit(m.Run())
}

func TestWorkerHandshakeAndStop(t *testing.T) {
	out := filepath.Join(t.TempDir(), "resource.log")
	w, err := StartWorker(context.Background(), WorkerOptions{Output: out, Interval: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, w.Running())

	// the header is on disk before StartWorker returns
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(string(data), "\n"), 3)

	time.Sleep(400 * time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.Running())

	log, err := report.ParseResourceLog(out)
	require.NoError(t, err)
	assert.Equal(t, int64(w.Pid()), log.Global["logger_process_pid"])
	assert.GreaterOrEqual(t, log.Rows(), 2)
}

func TestWorkerStopDoesNotWaitOutInterval(t *testing.T) {
	out := filepath.Join(t.TempDir(), "resource.log")
	w, err := StartWorker(context.Background(), WorkerOptions{Output: out, Interval: 5 * time.Second})
	require.NoError(t, err)

	begin := time.Now()
	require.NoError(t, w.Stop())
	assert.Less(t, time.Since(begin), stopGrace)
	assert.False(t, w.Running())

	log, err := report.ParseResourceLog(out)
	require.NoError(t, err)
	assert.Equal(t, 0, log.Rows())
}

func TestWorkerEndsWhenStopPipeCloses(t *testing.T) {
	w, err := StartWorker(context.Background(), WorkerOptions{
		Output:   filepath.Join(t.TempDir(), "resource.log"),
		Interval: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	// what the worker sees when its parent dies
	w.stopW.Close()
	select {
	case <-w.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("worker kept running after its stop pipe closed")
	}
	assert.NoError(t, w.Stop())
}

func TestWorkerConfigErrorIsReported(t *testing.T) {
	out := filepath.Join(t.TempDir(), "resource.log")
	done := make(chan error, 1)
	go func() {
		_, err := StartWorker(context.Background(), WorkerOptions{Output: out, Interval: time.Nanosecond})
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
		var werr *WorkerError
		assert.True(t, errors.As(err, &werr))
	case <-time.After(30 * time.Second):
		t.Fatal("caller hung on a failing worker")
	}
}

func TestWorkerUnknownPID(t *testing.T) {
	_, err := StartWorker(context.Background(), WorkerOptions{
		PIDs:     []int32{1 << 30},
		Output:   filepath.Join(t.TempDir(), "resource.log"),
		Interval: time.Second,
	})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestWorkerEndsWhenTargetExits(t *testing.T) {
	child, err := os.StartProcess("/bin/sleep", []string{"sleep", "1"}, &os.ProcAttr{})
	if err != nil {
		t.Skipf("cannot start /bin/sleep: %v", err)
	}
	go child.Wait()

	w, err := StartWorker(context.Background(), WorkerOptions{
		PIDs:     []int32{int32(child.Pid)},
		Output:   filepath.Join(t.TempDir(), "resource.log"),
		Interval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	select {
	case <-w.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("worker kept running after its target exited")
	}
	assert.NoError(t, w.Stop())
}

func TestRootReplacesWorker(t *testing.T) {
	dir := t.TempDir()
	root := &Root{pid: os.Getpid(), log: zap.NewNop()}
	defer root.Close()

	ctx := context.Background()
	require.NoError(t, root.StartResourceMonitor(ctx, WorkerOptions{Output: filepath.Join(dir, "a.log"), Interval: 50 * time.Millisecond}))
	first := root.Worker()
	require.NoError(t, root.StartResourceMonitor(ctx, WorkerOptions{Output: filepath.Join(dir, "b.log"), Interval: 50 * time.Millisecond}))
	second := root.Worker()

	assert.NotEqual(t, first.Pid(), second.Pid())
	assert.False(t, first.Running())
	assert.True(t, second.Running())
}

func TestRootCloseWithNothingSet(t *testing.T) {
	root := &Root{pid: os.Getpid(), log: zap.NewNop()}
	assert.NoError(t, root.Close())
	assert.NoError(t, root.Close())
}

func TestRootDefaults(t *testing.T) {
	root := &Root{pid: 1234, log: zap.NewNop()}
	assert.Equal(t, "resource_monitor_PID1234.log", root.DefaultResourceOutput())
	assert.Equal(t, "event_monitor_PID1234.log", root.DefaultEventOutput())
	assert.Equal(t, "event_monitor_PID1234.log", root.Events().Path())
	assert.Same(t, root.Events(), root.Events())
}

func TestShutdownClosesRegisteredRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	root := NewRoot()
	l, err := root.StartEventMonitor(path)
	require.NoError(t, err)
	require.NoError(t, l.LogStart("x", "1"))

	require.NoError(t, Shutdown())
	assert.ErrorIs(t, l.LogEnd("x", "1"), errdefs.ErrInvalidState)
	assert.NoError(t, Shutdown())
}

// Mirrors a typical program: sample this process every 100ms while it does
// ten half-second iterations, each with a timed region.
func TestMonitorOwnProcessScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("takes several seconds")
	}
	dir := t.TempDir()
	resPath := filepath.Join(dir, "resource.log")
	evPath := filepath.Join(dir, "events.log")

	root := NewRoot()
	require.NoError(t, root.StartResourceMonitor(context.Background(), WorkerOptions{Output: resPath, Interval: 100 * time.Millisecond}))
	ev, err := root.StartEventMonitor(evPath)
	require.NoError(t, err)

	work := ev.Wrap("my_func", func() error {
		for i := 0; i < 10; i++ {
			time.Sleep(500 * time.Millisecond)
			func() {
				defer root.Region("load array").End()
				buf := make([]byte, 8<<20)
				for j := range buf {
					buf[j] = byte(j)
				}
			}()
		}
		return nil
	})
	require.NoError(t, work())
	require.NoError(t, Shutdown())

	res, err := report.ParseResourceLog(resPath)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Global["cpu_count"], int64(1))
	assert.Equal(t, []string{"time", "cpu_percent", "cpu_percent_global"}, res.Columns[:3])
	assert.GreaterOrEqual(t, res.Rows(), 40)

	evs, err := report.ParseEventLog(evPath)
	require.NoError(t, err)
	assert.Len(t, evs.Intervals["my_func"], 1)
	assert.Len(t, evs.Intervals["load array"], 10)
	assert.Empty(t, evs.Incomplete())
}
