package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
)

// Config carries runtime options for resmon subcommands.
type Config struct {
	PIDs        []int32
	Output      string
	EventOutput string
	GPUIDs      []int
	Interval    time.Duration
	LogLevel    string
	Command     []string // for "run": the program to monitor
}

func Default() Config {
	return Config{
		Interval: time.Second,
		LogLevel: "info",
	}
}

// FromFlags parses the flags of subcommand cmd. RESMON_* environment
// variables fill in options that were not given on the command line.
func FromFlags(cmd string, args []string, stderr io.Writer) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("resmon "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var pids, gpus string
	var interval float64
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "log level: debug|info|warn|error")
	switch cmd {
	case "sample":
		fs.StringVar(&pids, "pid", "", "process PIDs separated by comma, like \"1,2,3\" (required)")
		fs.StringVar(&cfg.Output, "output", "", "output file; stdout when empty")
		fs.StringVar(&gpus, "gpu_ids", "", "GPU indices to monitor; none when empty")
		fs.Float64Var(&interval, "interval", cfg.Interval.Seconds(), "seconds between samples")
	case "run":
		fs.StringVar(&cfg.Output, "output", "", "resource log; resource_monitor_PID<pid>.log when empty")
		fs.StringVar(&cfg.EventOutput, "events", "", "event log; event_monitor_PID<pid>.log when empty")
		fs.StringVar(&gpus, "gpu_ids", "", "GPU indices to monitor; none when empty")
		fs.Float64Var(&interval, "interval", cfg.Interval.Seconds(), "seconds between samples")
	case "report", "watch":
		fs.StringVar(&cfg.Output, "resource", "", "resource log to read")
		fs.StringVar(&cfg.EventOutput, "events", "", "event log to read")
	default:
		return cfg, fmt.Errorf("%w: unknown command %q", errdefs.ErrInvalidArgument, cmd)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}
	given := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { given[f.Name] = true })

	env := viper.New()
	env.SetEnvPrefix("RESMON")
	env.AutomaticEnv()
	fromEnv := func(flagName, key string, dst *string) {
		if fs.Lookup(flagName) == nil || given[flagName] {
			return
		}
		if v := env.GetString(key); v != "" {
			*dst = v
		}
	}
	intervalEnv := ""
	fromEnv("interval", "interval", &intervalEnv)
	fromEnv("gpu_ids", "gpu_ids", &gpus)
	fromEnv("output", "output", &cfg.Output)
	fromEnv("events", "events", &cfg.EventOutput)
	fromEnv("log_level", "log_level", &cfg.LogLevel)

	if fs.Lookup("interval") != nil {
		if intervalEnv != "" {
			d, err := ParseInterval(intervalEnv)
			if err != nil {
				return cfg, err
			}
			cfg.Interval = d
		} else {
			cfg.Interval = time.Duration(interval * float64(time.Second))
		}
		if cfg.Interval <= 0 {
			return cfg, fmt.Errorf("%w: interval must be positive, got %v", errdefs.ErrInvalidArgument, cfg.Interval)
		}
	}

	var err error
	if cfg.GPUIDs, err = ParseIntList(gpus); err != nil {
		return cfg, err
	}
	switch cmd {
	case "sample":
		if pids == "" {
			return cfg, fmt.Errorf("%w: --pid is required", errdefs.ErrInvalidArgument)
		}
		ids, err := ParseIntList(pids)
		if err != nil {
			return cfg, err
		}
		for _, id := range ids {
			cfg.PIDs = append(cfg.PIDs, int32(id))
		}
	case "run":
		cfg.Command = fs.Args()
		if len(cfg.Command) == 0 {
			return cfg, fmt.Errorf("%w: run needs a command after --", errdefs.ErrInvalidArgument)
		}
	case "report", "watch":
		if cfg.Output == "" && (cmd == "watch" || cfg.EventOutput == "") {
			return cfg, fmt.Errorf("%w: --resource is required", errdefs.ErrInvalidArgument)
		}
	}
	return cfg, nil
}

// ParseIntList parses "1,2,3". An empty string yields nil.
func ParseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", errdefs.ErrInvalidArgument, part)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseInterval accepts seconds ("0.5") or a Go duration ("500ms").
func ParseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad interval %q", errdefs.ErrInvalidArgument, s)
	}
	return d, nil
}

// IsHelp reports whether err came from -h/--help.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
