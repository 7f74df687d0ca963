package monitor

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
	"github.com/Dicklesworthstone/resource_monitor/internal/sampler"
)

// RunWorkerIfRequested turns the current process into a resource worker when
// it was started by StartWorker, and exits once sampling ends. Otherwise it
// returns immediately.
func RunWorkerIfRequested() {
	if os.Getenv(workerEnv) != "1" {
		return
	}
	os.Exit(runWorker())
}

func runWorker() int {
	ready := os.NewFile(3, "ready")
	stop := os.NewFile(4, "stop")

	var cfg workerConfig
	if err := json.Unmarshal([]byte(os.Getenv(workerConfigEnv)), &cfg); err != nil {
		sendReady(ready, readyMsg{Kind: errdefs.Kind(errdefs.ErrInvalidArgument), Error: "bad worker config: " + err.Error()})
		return 2
	}
	logutil.InitLogger(cfg.LogLevel)
	log := logutil.GetLogger().Named("worker")
	defer log.Sync()

	var stopped atomic.Bool
	go func() {
		buf := make([]byte, 1)
		stop.Read(buf) // a byte or EOF both mean stop
		stopped.Store(true)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), terminationSignals...)
	defer cancel()

	s, err := sampler.New(sampler.Options{
		PIDs:     cfg.PIDs,
		Output:   cfg.Output,
		Interval: cfg.Interval,
		GPUIDs:   cfg.GPUIDs,
		Stop:     &stopped,
	})
	if err != nil {
		log.Error("sampler setup failed", zap.Error(err))
		sendReady(ready, readyMsg{Kind: errdefs.Kind(err), Error: err.Error()})
		return 2
	}
	sendReady(ready, readyMsg{OK: true, PID: os.Getpid()})

	runErr := s.Run(ctx)
	if err := s.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		log.Error("sampling failed", zap.Error(runErr))
		return 1
	}
	return 0
}

func sendReady(f *os.File, msg readyMsg) {
	json.NewEncoder(f).Encode(msg)
	f.Close()
}
