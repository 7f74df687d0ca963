package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/config"
	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
	"github.com/Dicklesworthstone/resource_monitor/internal/monitor"
	"github.com/Dicklesworthstone/resource_monitor/internal/report"
	"github.com/Dicklesworthstone/resource_monitor/internal/sampler"
	"github.com/Dicklesworthstone/resource_monitor/internal/ui"
)

const usage = `usage: resmon <command> [flags]

commands:
  sample   sample processes and write a resource log
  run      run a command under a resource worker and an event logger
  report   summarize a resource log and an event log
  watch    follow a resource log live
`

func main() {
	monitor.RunWorkerIfRequested()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd := args[0]
	switch cmd {
	case "sample", "run", "report", "watch":
	default:
		fmt.Fprintf(os.Stderr, "resmon: unknown command %q\n%s", cmd, usage)
		return 2
	}
	cfg, err := config.FromFlags(cmd, args[1:], os.Stderr)
	if config.IsHelp(err) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "resmon:", err)
		return 2
	}

	logutil.InitLogger(cfg.LogLevel)
	logger := logutil.GetLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigch
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()
	defer monitor.Shutdown()

	switch cmd {
	case "sample":
		err = runSample(ctx, cfg)
	case "run":
		return runCommand(ctx, cfg)
	case "report":
		err = runReport(cfg)
	case "watch":
		err = ui.RunTUI(cfg)
	}
	if err != nil {
		logger.Error("resmon failed", zap.String("command", cmd), zap.Error(err))
		if errors.Is(err, errdefs.ErrInvalidArgument) {
			return 2
		}
		return 1
	}
	return 0
}

// runSample samples in the foreground until the processes exit or a signal
// arrives.
func runSample(ctx context.Context, cfg config.Config) error {
	s, err := sampler.New(sampler.Options{
		PIDs:     cfg.PIDs,
		Output:   cfg.Output,
		Interval: cfg.Interval,
		GPUIDs:   cfg.GPUIDs,
	})
	if err != nil {
		return err
	}
	runErr := s.Run(ctx)
	if err := s.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runCommand starts cfg.Command, samples it from a resource worker, records
// its lifetime as an event and returns its exit code.
func runCommand(ctx context.Context, cfg config.Config) int {
	logger := logutil.GetLogger()

	child := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	child.Stdin, child.Stdout, child.Stderr = os.Stdin, os.Stdout, os.Stderr
	child.Cancel = func() error { return child.Process.Signal(os.Interrupt) }

	root := monitor.NewRoot()
	ev, err := root.StartEventMonitor(cfg.EventOutput)
	if err != nil {
		logger.Error("open event log", zap.Error(err))
		return 1
	}
	if err := ev.Open(); err != nil {
		logger.Error("open event log", zap.Error(err))
		return 1
	}

	if err := child.Start(); err != nil {
		logger.Error("start command", zap.Strings("command", cfg.Command), zap.Error(err))
		return 127
	}
	tok := ev.Region(filepath.Base(cfg.Command[0]))

	err = root.StartResourceMonitor(ctx, monitor.WorkerOptions{
		PIDs:     []int32{int32(child.Process.Pid)},
		Output:   cfg.Output,
		Interval: cfg.Interval,
		GPUIDs:   cfg.GPUIDs,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		// the command keeps running unmonitored
		logger.Warn("resource monitor not started", zap.Error(err))
	}

	waitErr := child.Wait()
	tok.End()
	if err := monitor.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0
	case errors.As(waitErr, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return 1
	default:
		logger.Error("wait for command", zap.Error(waitErr))
		return 1
	}
}

func runReport(cfg config.Config) error {
	logger := logutil.GetLogger()
	var (
		res *report.ResourceLog
		evs *report.EventLog
		err error
	)
	if cfg.Output != "" {
		if res, err = report.ParseResourceLog(cfg.Output); err != nil {
			return err
		}
	}
	if cfg.EventOutput != "" {
		if evs, err = report.ParseEventLog(cfg.EventOutput); err != nil {
			return err
		}
		for _, iv := range evs.Incomplete() {
			logger.Warn("incomplete event occurrence",
				zap.String("event", iv.Name), zap.String("id", iv.ID),
				zap.Bool("has_start", iv.HasStart), zap.Bool("has_end", iv.HasEnd))
		}
	}
	fmt.Println(ui.RenderReport(res, evs))
	return nil
}
