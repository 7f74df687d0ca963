package backend

import (
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostOwnProcess(t *testing.T) {
	h := NewHost()
	p, err := h.Process(int32(os.Getpid()))
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), p.Pid())

	st, err := p.Status()
	require.NoError(t, err)
	assert.NotEqual(t, StatusZombie, st)

	m, err := p.MemoryInfo()
	require.NoError(t, err)
	assert.Greater(t, m.RSS, uint64(0))

	_, err = p.CPUPercent()
	assert.NoError(t, err)
}

func TestHostGlobals(t *testing.T) {
	h := NewHost()
	n, err := h.CPUCount()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	vm, err := h.VirtualMemory()
	require.NoError(t, err)
	assert.Greater(t, vm.Total, uint64(0))
}

func TestHostMissingProcess(t *testing.T) {
	_, err := NewHost().Process(1 << 30)
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, StatusRunning},
		{[]string{process.Running}, StatusRunning},
		{[]string{process.Sleep}, process.Sleep},
		{[]string{process.Stop}, StatusStopped},
		{[]string{process.Zombie}, StatusZombie},
		{[]string{process.UnknownState}, StatusDead},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusOf(c.in), "%v", c.in)
	}
}
