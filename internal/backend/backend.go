// Package backend exposes per-process and host metrics to the sampler.
package backend

import "errors"

// ErrNoSuchProcess is returned when a PID does not name a live process.
var ErrNoSuchProcess = errors.New("no such process")

// Process state names as reported by Process.Status.
const (
	StatusRunning = "running"
	StatusStopped = "stop"
	StatusZombie  = "zombie"
	StatusDead    = "dead"
)

// MemoryInfo is a process's resident and virtual size in bytes.
type MemoryInfo struct {
	RSS uint64
	VMS uint64
}

// IOCounters are cumulative read/write operation and byte counts.
type IOCounters struct {
	ReadCount  uint64
	WriteCount uint64
	ReadBytes  uint64
	WriteBytes uint64
}

// VirtualMemory is the host RAM picture in bytes.
type VirtualMemory struct {
	Total     uint64
	Available uint64
	Used      uint64
}

// SwapMemory is the host swap picture in bytes.
type SwapMemory struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// Process is a handle to one monitored PID.
type Process interface {
	Pid() int32
	Status() (string, error)
	CPUPercent() (float64, error)
	MemoryInfo() (MemoryInfo, error)
	IOCounters() (IOCounters, error)
}

// Backend answers per-process and whole-machine queries.
type Backend interface {
	Process(pid int32) (Process, error)
	CPUPercent() (float64, error)
	CPUCount() (int, error)
	VirtualMemory() (VirtualMemory, error)
	SwapMemory() (SwapMemory, error)
	DiskIOCounters() (IOCounters, error)
}

// GPU reports memory figures in bytes, one entry per monitored device, in
// the order the devices were configured.
type GPU interface {
	Total() ([]uint64, error)
	Used() ([]uint64, error)
	Free() ([]uint64, error)
	ProcessUsed(pids []int32) ([]uint64, error)
}
