package ui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/resource_monitor/internal/config"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
	"github.com/Dicklesworthstone/resource_monitor/internal/report"
)

const preamble = "banner\n" +
	"logger_process_pid:77,cpu_count:4,vm_total_mb:1000,vm_available_mb:600,swap_total_mb:0,swap_free_mb:0,gpu_0_total_mb:2000,gpu_0_free_mb:500\n"

func header() string {
	return strings.Join(model.Columns([]int{0}), model.Separator) + "\n"
}

func row(t float64, cpu float64) string {
	s := model.Sample{
		Time:             time.Unix(0, int64(t*1e9)),
		CPUPercent:       cpu,
		CPUPercentGlobal: 25,
		RSSMB:            10,
		VMSMB:            20,
		VMSGlobalMB:      400,
		GPUs:             []model.GPUMem{{ProcessMB: 300, GlobalMB: 1500}},
	}
	return s.Row() + "\n"
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTailerReadsAppendsAndResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	tl := newTailer(path)

	p, reset, err := tl.read()
	require.NoError(t, err)
	assert.Empty(t, p)
	assert.False(t, reset)

	appendFile(t, path, "abc")
	p, _, err = tl.read()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p))

	appendFile(t, path, "def")
	p, _, err = tl.read()
	require.NoError(t, err)
	assert.Equal(t, "def", string(p))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	p, reset, err = tl.read()
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, "x", string(p))
}

func TestModelFollowsResourceLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	appendFile(t, path, preamble+header()+row(100, 12.5))

	m := New(config.Config{Output: path})
	m.Update(loadMsg(path))
	require.NoError(t, m.err)
	assert.Equal(t, 1, m.rows)
	assert.Equal(t, 12.5, m.value("cpu_percent"))
	assert.Equal(t, []int{0}, m.gpuIDs())

	// a partially written row is held back
	full := row(101, 50)
	appendFile(t, path, full[:5])
	m.Update(loadMsg(path))
	assert.Equal(t, 1, m.rows)
	appendFile(t, path, full[5:])
	m.Update(loadMsg(path))
	assert.Equal(t, 2, m.rows)
	assert.Equal(t, 50.0, m.value("cpu_percent"))

	view := m.View()
	assert.Contains(t, view, "Resource Monitor")
	assert.Contains(t, view, "logger pid 77")
	assert.Contains(t, view, "GPU")
	assert.Contains(t, view, "2 samples")
}

func TestModelShowsEvents(t *testing.T) {
	dir := t.TempDir()
	res := filepath.Join(dir, "r.log")
	ev := filepath.Join(dir, "e.log")
	appendFile(t, res, preamble)
	appendFile(t, ev, "1.0,start,load,1\n2.5,end,load,1\n3.0,start,load,2\n")

	m := New(config.Config{Output: res, EventOutput: ev})
	m.Update(loadMsg(ev))
	require.NotNil(t, m.events)
	view := m.View()
	assert.Contains(t, view, "Recent events")
	assert.Contains(t, view, "1.500s")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "waiting for samples")

	// a torn line keeps the previous view
	appendFile(t, ev, "3.5,end")
	m.Update(loadMsg(ev))
	assert.Len(t, m.events.Intervals["load"], 2)
}

func TestRenderEventsKeepsMostRecent(t *testing.T) {
	e := &report.EventLog{
		Names: []string{"a", "b"},
		Intervals: map[string][]report.Interval{
			"a": {{ID: "1", Start: 1, End: 2, HasStart: true, HasEnd: true}, {ID: "2", Start: 5, End: 6, HasStart: true, HasEnd: true}},
			"b": {{ID: "1", Start: 3, HasStart: true}},
		},
	}
	out := renderEvents(e, 2)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "b")
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[2], "1.000s")
}

func TestGaugeBarClamps(t *testing.T) {
	assert.Equal(t, "[░░░░]   0.0%", gaugeBar(-5, 4))
	assert.Equal(t, "[████] 100.0%", gaugeBar(250, 4))
	assert.Equal(t, "[██░░]  50.0%", gaugeBar(50, 4))
	assert.Equal(t, 0.0, pct(5, 0))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
	assert.Equal(t, "日本語…", truncate("日本語テキスト", 4))
	assert.True(t, utf8.ValidString(truncate("ñañañaña", 3)))
}

func TestWatchFilesReportsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 16)
	require.NoError(t, watchFiles(ctx, []string{path}, changed))

	appendFile(t, path, "x")
	select {
	case got := <-changed:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestRenderReport(t *testing.T) {
	dir := t.TempDir()
	res := filepath.Join(dir, "r.log")
	appendFile(t, res, preamble+header()+row(1, 10)+row(2, 30)+row(3, 20))
	ev := filepath.Join(dir, "e.log")
	appendFile(t, ev, "1.5,start,step,1\n2.5,end,step,1\n2.8,start,step,2\n")

	r, err := report.ParseResourceLog(res)
	require.NoError(t, err)
	e, err := report.ParseEventLog(ev)
	require.NoError(t, err)

	out := RenderReport(r, e)
	assert.Contains(t, out, "Columns (3 samples)")
	assert.Contains(t, out, "logger_process_pid")
	assert.Contains(t, out, "step")
	assert.Contains(t, out, "Peak usage per occurrence")
	assert.Contains(t, out, "30.0")

	assert.NotContains(t, RenderReport(nil, e), "Resources")
	assert.NotContains(t, RenderReport(r, nil), "Events")
}
