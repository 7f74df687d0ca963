package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Separator delimits fields in both log formats.
const Separator = ","

// MB is the divisor for every byte-denominated figure.
const MB = 1024 * 1024

// BaseColumns are the sample columns present regardless of GPU monitoring.
var BaseColumns = []string{
	"time",
	"cpu_percent",
	"cpu_percent_global",
	"rss_mb",
	"vms_mb",
	"vms_global_mb",
	"swap_used_mb",
	"read_count",
	"read_count_global",
	"read_mb",
	"read_mb_global",
	"write_count",
	"write_count_global",
	"write_mb",
	"write_mb_global",
}

// Columns returns the header for a sampler monitoring gpuIDs.
func Columns(gpuIDs []int) []string {
	cols := append([]string(nil), BaseColumns...)
	for _, id := range gpuIDs {
		cols = append(cols, fmt.Sprintf("gpu_%d_mem_mb", id), fmt.Sprintf("gpu_%d_mem_mb_global", id))
	}
	return cols
}

// IsFloatColumn reports whether a column decodes as floating point.
func IsFloatColumn(name string) bool {
	switch name {
	case "time", "cpu_percent", "cpu_percent_global":
		return true
	}
	return false
}

// Counters pairs an aggregate over the monitored processes with the
// whole-machine figure.
type Counters struct {
	Count       uint64
	CountGlobal uint64
	MB          uint64
	MBGlobal    uint64
}

// GPUMem is one device's memory use in MB.
type GPUMem struct {
	ProcessMB uint64
	GlobalMB  uint64
}

// Sample is one row of the resource log. Field order matches BaseColumns.
type Sample struct {
	Time             time.Time
	CPUPercent       float64
	CPUPercentGlobal float64
	RSSMB            uint64
	VMSMB            uint64
	VMSGlobalMB      uint64
	SwapUsedMB       uint64
	Read             Counters
	Write            Counters
	GPUs             []GPUMem
}

// Unix renders t as fractional Unix seconds, the time base shared by both logs.
func Unix(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FormatTime renders t the way both logs store timestamps.
func FormatTime(t time.Time) string {
	return strconv.FormatFloat(Unix(t), 'f', 6, 64)
}

// Fields renders the sample in column order.
func (s *Sample) Fields() []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	out := []string{
		FormatTime(s.Time),
		f(s.CPUPercent),
		f(s.CPUPercentGlobal),
		u(s.RSSMB),
		u(s.VMSMB),
		u(s.VMSGlobalMB),
		u(s.SwapUsedMB),
		u(s.Read.Count),
		u(s.Read.CountGlobal),
		u(s.Read.MB),
		u(s.Read.MBGlobal),
		u(s.Write.Count),
		u(s.Write.CountGlobal),
		u(s.Write.MB),
		u(s.Write.MBGlobal),
	}
	for _, g := range s.GPUs {
		out = append(out, u(g.ProcessMB), u(g.GlobalMB))
	}
	return out
}

// Row is the CSV line for the sample, without the trailing newline.
func (s *Sample) Row() string {
	return strings.Join(s.Fields(), Separator)
}
