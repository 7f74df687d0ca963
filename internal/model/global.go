package model

import (
	"fmt"
	"strconv"
	"strings"
)

// GPUInfo is the one-time memory snapshot of a monitored device.
type GPUInfo struct {
	ID      int
	TotalMB uint64
	FreeMB  uint64
}

// GlobalInfo is written once per resource log, ahead of the header.
type GlobalInfo struct {
	LoggerPID     int
	CPUCount      int
	VMTotalMB     uint64
	VMAvailableMB uint64
	SwapTotalMB   uint64
	SwapFreeMB    uint64
	GPUs          []GPUInfo
}

// Pair is one key:value entry of the global info line.
type Pair struct {
	Key   string
	Value int64
}

// Pairs lists the entries in the order they are written.
func (g *GlobalInfo) Pairs() []Pair {
	pairs := []Pair{
		{"logger_process_pid", int64(g.LoggerPID)},
		{"cpu_count", int64(g.CPUCount)},
		{"vm_total_mb", int64(g.VMTotalMB)},
		{"vm_available_mb", int64(g.VMAvailableMB)},
		{"swap_total_mb", int64(g.SwapTotalMB)},
		{"swap_free_mb", int64(g.SwapFreeMB)},
	}
	for _, gpu := range g.GPUs {
		pairs = append(pairs,
			Pair{fmt.Sprintf("gpu_%d_total_mb", gpu.ID), int64(gpu.TotalMB)},
			Pair{fmt.Sprintf("gpu_%d_free_mb", gpu.ID), int64(gpu.FreeMB)})
	}
	return pairs
}

// Line renders the global info line without the trailing newline.
func (g *GlobalInfo) Line() string {
	pairs := g.Pairs()
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.Key + ":" + strconv.FormatInt(p.Value, 10)
	}
	return strings.Join(parts, Separator)
}
