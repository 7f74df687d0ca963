package backend

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
)

const (
	mebibyte   = 1024 * 1024
	smiTimeout = 2 * time.Second
)

type runFunc func(timeout time.Duration, name string, args ...string) (string, error)

type gpuRow struct {
	index int
	uuid  string
	total uint64
	used  uint64
	free  uint64
}

// NvidiaSMI is a GPU backed by the nvidia-smi CLI. Figures come back in MiB
// and are converted to bytes.
type NvidiaSMI struct {
	ids []int
	run runFunc
}

// NewNvidiaSMI checks that every id in ids names a visible device.
func NewNvidiaSMI(ids []int) (*NvidiaSMI, error) {
	return newNvidiaSMI(ids, runCmd)
}

func newNvidiaSMI(ids []int, run runFunc) (*NvidiaSMI, error) {
	n := &NvidiaSMI{ids: append([]int(nil), ids...), run: run}
	rows, err := n.query()
	if err != nil {
		return nil, fmt.Errorf("%w: nvidia-smi: %v", errdefs.ErrBackend, err)
	}
	for _, id := range ids {
		if _, ok := rows[id]; !ok {
			return nil, fmt.Errorf("%w: gpu %d not found", errdefs.ErrBackend, id)
		}
	}
	return n, nil
}

func (n *NvidiaSMI) query() (map[int]gpuRow, error) {
	out, err := n.run(smiTimeout, "nvidia-smi",
		"--query-gpu=index,uuid,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	rows := make(map[int]gpuRow)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), ",")
		if len(parts) < 5 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		rows[idx] = gpuRow{
			index: idx,
			uuid:  strings.TrimSpace(parts[1]),
			total: parseMiB(parts[2]),
			used:  parseMiB(parts[3]),
			free:  parseMiB(parts[4]),
		}
	}
	return rows, nil
}

func (n *NvidiaSMI) pick(field func(gpuRow) uint64) ([]uint64, error) {
	rows, err := n.query()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(n.ids))
	for i, id := range n.ids {
		out[i] = field(rows[id])
	}
	return out, nil
}

func (n *NvidiaSMI) Total() ([]uint64, error) {
	return n.pick(func(r gpuRow) uint64 { return r.total })
}

func (n *NvidiaSMI) Used() ([]uint64, error) {
	return n.pick(func(r gpuRow) uint64 { return r.used })
}

func (n *NvidiaSMI) Free() ([]uint64, error) {
	return n.pick(func(r gpuRow) uint64 { return r.free })
}

// ProcessUsed sums, per device, the memory held by compute processes whose
// PID is in pids.
func (n *NvidiaSMI) ProcessUsed(pids []int32) ([]uint64, error) {
	rows, err := n.query()
	if err != nil {
		return nil, err
	}
	out, err := n.run(smiTimeout, "nvidia-smi",
		"--query-compute-apps=gpu_uuid,pid,used_memory",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	wanted := make(map[int32]bool, len(pids))
	for _, pid := range pids {
		wanted[pid] = true
	}
	byUUID := make(map[string]uint64)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), ",")
		if len(parts) < 3 {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil || !wanted[int32(pid)] {
			continue
		}
		byUUID[strings.TrimSpace(parts[0])] += parseMiB(parts[2])
	}
	used := make([]uint64, len(n.ids))
	for i, id := range n.ids {
		used[i] = byUUID[rows[id].uuid]
	}
	return used, nil
}

// parseMiB reads a MiB figure; "[N/A]" and friends read as 0.
func parseMiB(s string) uint64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return uint64(f) * mebibyte
}

func runCmd(timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", ctx.Err()
	}
	return string(out), err
}
