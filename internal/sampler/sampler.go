package sampler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/backend"
	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
)

// CalibrationRounds is the number of discarded samples used to estimate the
// cost of one sample.
const CalibrationRounds = 8

// Stopper is a cooperative stop flag; *atomic.Bool satisfies it.
type Stopper interface {
	Load() bool
}

// Options configures a Sampler.
type Options struct {
	PIDs     []int32       // defaults to the calling process
	Output   string        // file to create; empty means Writer
	Writer   io.Writer     // used when Output is empty; defaults to stdout
	Interval time.Duration // time between samples, >= 2x the calibration baseline
	GPUIDs   []int         // empty disables GPU columns
	Stop     Stopper       // polled once per tick

	Backend backend.Backend // defaults to backend.NewHost()
	GPU     backend.GPU     // defaults to nvidia-smi when GPUIDs is set

	now func() time.Time
}

// Sampler writes one CSV row of resource figures per interval until every
// monitored process is gone or the stop flag is set.
type Sampler struct {
	Interval time.Duration
	Baseline time.Duration

	pids   []int32
	gpuIDs []int
	procs  []backend.Process
	be     backend.Backend
	gpu    backend.GPU
	stop   Stopper

	out    *bufio.Writer
	closer io.Closer
	now    func() time.Time
	log    *zap.Logger

	diskWarned bool
}

// New resolves the target processes, calibrates the sampling cost and
// writes the banner, global info and header lines. It fails with
// errdefs.ErrInvalidArgument when the interval cannot be sustained.
func New(opts Options) (*Sampler, error) {
	if opts.Interval < 0 {
		return nil, fmt.Errorf("%w: interval %v is negative", errdefs.ErrInvalidArgument, opts.Interval)
	}
	s := &Sampler{
		Interval: opts.Interval,
		pids:     append([]int32(nil), opts.PIDs...),
		gpuIDs:   append([]int(nil), opts.GPUIDs...),
		be:       opts.Backend,
		gpu:      opts.GPU,
		stop:     opts.Stop,
		now:      opts.now,
		log:      logutil.GetLogger().Named("sampler"),
	}
	if len(s.pids) == 0 {
		s.pids = []int32{int32(os.Getpid())}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.be == nil {
		s.be = backend.NewHost()
	}
	if len(s.gpuIDs) > 0 && s.gpu == nil {
		gpu, err := backend.NewNvidiaSMI(s.gpuIDs)
		if err != nil {
			return nil, err
		}
		s.gpu = gpu
	}
	if len(s.gpuIDs) == 0 {
		s.gpu = nil
	}

	for _, pid := range s.pids {
		p, err := s.be.Process(pid)
		if err != nil {
			return nil, fmt.Errorf("%w: pid %d: %v", errdefs.ErrInvalidArgument, pid, err)
		}
		s.procs = append(s.procs, p)
	}

	w := opts.Writer
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return nil, fmt.Errorf("open resource log: %w", err)
		}
		w, s.closer = f, f
	}
	if w == nil {
		w = os.Stdout
	}
	s.out = bufio.NewWriter(w)

	if err := s.start(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sampler) start() error {
	begin := s.now()
	for i := 0; i < CalibrationRounds; i++ {
		if _, err := s.Sample(); err != nil {
			return err
		}
	}
	s.Baseline = s.now().Sub(begin) / CalibrationRounds

	fmt.Fprintf(s.out,
		"In current environment, the latency of resource logging is estimated to be %.4e s, "+
			"your interval is advised to be 2x greater than it.\n", s.Baseline.Seconds())
	if s.Interval < 2*s.Baseline {
		s.out.Flush()
		return fmt.Errorf("%w: interval %v is below twice the estimated sampling latency %v",
			errdefs.ErrInvalidArgument, s.Interval, s.Baseline)
	}

	info, err := s.globalInfo()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, info.Line())
	fmt.Fprintln(s.out, strings.Join(model.Columns(s.gpuIDs), model.Separator))
	if err := s.out.Flush(); err != nil {
		return err
	}
	s.log.Info("resource sampler ready",
		zap.Int32s("pids", s.pids),
		zap.Ints("gpus", s.gpuIDs),
		zap.Duration("interval", s.Interval),
		zap.Duration("baseline", s.Baseline))
	return nil
}

func (s *Sampler) globalInfo() (*model.GlobalInfo, error) {
	cpus, err := s.be.CPUCount()
	if err != nil {
		return nil, fmt.Errorf("cpu count: %w", err)
	}
	vm, err := s.be.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	swap, err := s.be.SwapMemory()
	if err != nil {
		return nil, fmt.Errorf("swap memory: %w", err)
	}
	info := &model.GlobalInfo{
		LoggerPID:     os.Getpid(),
		CPUCount:      cpus,
		VMTotalMB:     vm.Total / model.MB,
		VMAvailableMB: vm.Available / model.MB,
		SwapTotalMB:   swap.Total / model.MB,
		SwapFreeMB:    swap.Free / model.MB,
	}
	if s.gpu != nil {
		totals, err := s.gpu.Total()
		if err != nil {
			return nil, fmt.Errorf("%w: gpu total: %v", errdefs.ErrBackend, err)
		}
		frees, err := s.gpu.Free()
		if err != nil {
			return nil, fmt.Errorf("%w: gpu free: %v", errdefs.ErrBackend, err)
		}
		for i, id := range s.gpuIDs {
			info.GPUs = append(info.GPUs, model.GPUInfo{
				ID:      id,
				TotalMB: at(totals, i) / model.MB,
				FreeMB:  at(frees, i) / model.MB,
			})
		}
	}
	return info, nil
}

// alive drops processes that are stopped, dead, zombie or gone.
func (s *Sampler) alive() []backend.Process {
	var out []backend.Process
	for _, p := range s.procs {
		st, err := p.Status()
		if err != nil {
			continue
		}
		switch st {
		case backend.StatusStopped, backend.StatusDead, backend.StatusZombie:
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sample takes one reading. It returns a nil sample and nil error once no
// monitored process is alive.
func (s *Sampler) Sample() (*model.Sample, error) {
	procs := s.alive()
	if len(procs) == 0 {
		return nil, nil
	}

	smp := &model.Sample{Time: s.now()}
	pids := make([]int32, 0, len(procs))
	for _, p := range procs {
		cpu, err := p.CPUPercent()
		if err != nil {
			continue
		}
		mem, err := p.MemoryInfo()
		if err != nil {
			continue
		}
		ioc, err := p.IOCounters()
		if err != nil {
			continue
		}
		smp.CPUPercent += cpu
		smp.RSSMB += mem.RSS / model.MB
		smp.VMSMB += mem.VMS / model.MB
		smp.Read.Count += ioc.ReadCount
		smp.Read.MB += ioc.ReadBytes / model.MB
		smp.Write.Count += ioc.WriteCount
		smp.Write.MB += ioc.WriteBytes / model.MB
		// GPU figures cover the same processes as the sums above
		pids = append(pids, p.Pid())
	}

	var err error
	if smp.CPUPercentGlobal, err = s.be.CPUPercent(); err != nil {
		return nil, fmt.Errorf("global cpu: %w", err)
	}
	vm, err := s.be.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	smp.VMSGlobalMB = vm.Used / model.MB
	swap, err := s.be.SwapMemory()
	if err != nil {
		return nil, fmt.Errorf("swap memory: %w", err)
	}
	smp.SwapUsedMB = swap.Used / model.MB
	disk, err := s.be.DiskIOCounters()
	if err != nil && !s.diskWarned {
		s.diskWarned = true
		s.log.Warn("global disk counters unavailable, reporting zero", zap.Error(err))
	}
	smp.Read.CountGlobal = disk.ReadCount
	smp.Read.MBGlobal = disk.ReadBytes / model.MB
	smp.Write.CountGlobal = disk.WriteCount
	smp.Write.MBGlobal = disk.WriteBytes / model.MB

	if s.gpu != nil {
		procUsed, err := s.gpu.ProcessUsed(pids)
		if err != nil {
			return nil, fmt.Errorf("%w: gpu process memory: %v", errdefs.ErrBackend, err)
		}
		used, err := s.gpu.Used()
		if err != nil {
			return nil, fmt.Errorf("%w: gpu memory: %v", errdefs.ErrBackend, err)
		}
		for i := range s.gpuIDs {
			smp.GPUs = append(smp.GPUs, model.GPUMem{
				ProcessMB: at(procUsed, i) / model.MB,
				GlobalMB:  at(used, i) / model.MB,
			})
		}
	}
	return smp, nil
}

// Run samples until every monitored process is gone, the stop flag is set
// or ctx is done. The stop flag is checked after each wake-up, so stopping
// through it takes up to one interval.
func (s *Sampler) Run(ctx context.Context) error {
	wait := s.Interval - s.Baseline
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	rows := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("resource sampler cancelled", zap.Int("rows", rows))
			return nil
		case <-timer.C:
		}
		smp, err := s.Sample()
		if err != nil {
			return err
		}
		if smp == nil {
			s.log.Info("monitored processes exited", zap.Int("rows", rows))
			return nil
		}
		if s.stop != nil && s.stop.Load() {
			s.log.Info("resource sampler stopped", zap.Int("rows", rows))
			return nil
		}
		if _, err := s.out.WriteString(smp.Row() + "\n"); err != nil {
			return err
		}
		if err := s.out.Flush(); err != nil {
			return err
		}
		rows++
		timer.Reset(wait)
	}
}

// Close flushes buffered output and closes the sink if New opened it.
func (s *Sampler) Close() error {
	err := s.out.Flush()
	if s.closer != nil {
		err = multierr.Append(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

func at(vals []uint64, i int) uint64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}
