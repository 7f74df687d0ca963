package backend

import (
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Host is the procfs/sysctl backed Backend.
type Host struct{}

func NewHost() *Host { return &Host{} }

func (h *Host) Process(pid int32) (Process, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, ErrNoSuchProcess
		}
		return nil, err
	}
	return &hostProcess{p: p}, nil
}

// CPUPercent is the whole-machine utilization since the previous call.
func (h *Host) CPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

// CPUCount prefers physical cores and falls back to logical ones on
// platforms that do not expose core topology.
func (h *Host) CPUCount() (int, error) {
	n, err := cpu.Counts(false)
	if err == nil && n > 0 {
		return n, nil
	}
	return cpu.Counts(true)
}

func (h *Host) VirtualMemory() (VirtualMemory, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return VirtualMemory{}, err
	}
	return VirtualMemory{Total: v.Total, Available: v.Available, Used: v.Used}, nil
}

func (h *Host) SwapMemory() (SwapMemory, error) {
	s, err := mem.SwapMemory()
	if err != nil {
		return SwapMemory{}, err
	}
	return SwapMemory{Total: s.Total, Used: s.Used, Free: s.Free}, nil
}

// DiskIOCounters sums the counters of every block device except loop devices.
func (h *Host) DiskIOCounters() (IOCounters, error) {
	counters, err := disk.IOCounters()
	if err != nil {
		return IOCounters{}, err
	}
	var total IOCounters
	for name, st := range counters {
		if strings.HasPrefix(name, "loop") {
			continue
		}
		total.ReadCount += st.ReadCount
		total.WriteCount += st.WriteCount
		total.ReadBytes += st.ReadBytes
		total.WriteBytes += st.WriteBytes
	}
	return total, nil
}

type hostProcess struct {
	p *process.Process
}

func (hp *hostProcess) Pid() int32 { return hp.p.Pid }

func (hp *hostProcess) Status() (string, error) {
	st, err := hp.p.Status()
	if err != nil {
		return "", err
	}
	return statusOf(st), nil
}

// statusOf maps gopsutil states to ours. gopsutil reports Linux state X
// (dead) as UnknownState.
func statusOf(st []string) string {
	if len(st) == 0 {
		return StatusRunning
	}
	switch st[0] {
	case process.Stop:
		return StatusStopped
	case process.Zombie:
		return StatusZombie
	case process.UnknownState:
		return StatusDead
	}
	return st[0]
}

// CPUPercent is relative to the previous call on the same handle; the first
// call reports 0.
func (hp *hostProcess) CPUPercent() (float64, error) {
	return hp.p.Percent(0)
}

func (hp *hostProcess) MemoryInfo() (MemoryInfo, error) {
	m, err := hp.p.MemoryInfo()
	if err != nil {
		return MemoryInfo{}, err
	}
	return MemoryInfo{RSS: m.RSS, VMS: m.VMS}, nil
}

func (hp *hostProcess) IOCounters() (IOCounters, error) {
	io, err := hp.p.IOCounters()
	if err != nil {
		return IOCounters{}, err
	}
	return IOCounters{
		ReadCount:  io.ReadCount,
		WriteCount: io.WriteCount,
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
	}, nil
}
