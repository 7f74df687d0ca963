// Package ui renders a live view of a resource log, and optionally an event
// log, while a monitored program is still writing them.
package ui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/resource_monitor/internal/config"
	"github.com/Dicklesworthstone/resource_monitor/internal/report"
)

const recentEvents = 8

// Model follows the resource and event logs named in its config.
type Model struct {
	resPath string
	evPath  string

	res    *tailer
	dec    *report.RowDecoder
	latest []float64
	rows   int

	events *report.EventLog
	err    error

	changed chan string
	cancel  context.CancelFunc
	width   int
	height  int
}

func New(cfg config.Config) *Model {
	return &Model{
		resPath: cfg.Output,
		evPath:  cfg.EventOutput,
		res:     newTailer(cfg.Output),
		dec:     report.NewRowDecoder(),
		changed: make(chan string),
		width:   120,
		height:  40,
	}
}

// Messages
type (
	changeMsg string // from the watcher
	loadMsg   string // initial read
	errMsg    struct{ err error }
)

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg { return changeMsg(<-m.changed) }
}

func (m *Model) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	paths := []string{m.resPath}
	if m.evPath != "" {
		paths = append(paths, m.evPath)
	}
	if err := watchFiles(ctx, paths, m.changed); err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	cmds := []tea.Cmd{m.waitForChange()}
	for _, p := range paths {
		p := p
		cmds = append(cmds, func() tea.Msg { return loadMsg(p) })
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case errMsg:
		m.err = msg.err
	case loadMsg:
		m.refresh(string(msg))
	case changeMsg:
		m.refresh(string(msg))
		return m, m.waitForChange()
	}
	return m, nil
}

// refresh reloads whichever log changed.
func (m *Model) refresh(path string) {
	if path == m.evPath && path != m.resPath {
		ev, err := report.ParseEventLog(path)
		if err == nil {
			m.events = ev
		}
		// a line being written shows up as malformed; keep the last good view
		return
	}
	p, reset, err := m.res.read()
	if err != nil {
		m.err = err
		return
	}
	if reset {
		m.dec = report.NewRowDecoder()
		m.latest, m.rows = nil, 0
	}
	rows, err := m.dec.Feed(p)
	m.rows += len(rows)
	if len(rows) > 0 {
		m.latest = rows[len(rows)-1]
	}
	m.err = err
}

// value returns the latest reading of column name.
func (m *Model) value(name string) float64 {
	for i, c := range m.dec.Columns {
		if c == name && i < len(m.latest) {
			return m.latest[i]
		}
	}
	return 0
}

func (m *Model) global(name string) float64 {
	return float64(m.dec.Global[name])
}

// gpuIDs lists the GPU indices present in the header.
func (m *Model) gpuIDs() []int {
	var ids []int
	for _, c := range m.dec.Columns {
		if !strings.HasPrefix(c, "gpu_") || !strings.HasSuffix(c, "_mem_mb") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(c, "gpu_"), "_mem_mb"))
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	stamp := "waiting for samples"
	if m.latest != nil {
		stamp = time.Unix(0, int64(m.value("time")*1e9)).Format("Mon Jan 2 15:04:05 MST 2006")
	}
	header := titleStyle.Render("Resource Monitor") + "  " +
		subtleStyle.Render(m.resPath+"  "+stamp)
	if pid, ok := m.dec.Global["logger_process_pid"]; ok {
		header += subtleStyle.Render(fmt.Sprintf("  logger pid %d", pid))
	}

	cpuCard := card("CPU",
		fmt.Sprintf("%s  process %.1f%% of %d cores",
			gaugeBar(m.value("cpu_percent_global"), 28),
			m.value("cpu_percent"), int(m.global("cpu_count"))))

	memCard := card("Memory",
		fmt.Sprintf("%s  %.0f/%.0f MB | RSS %.0f MB VMS %.0f MB | Swap %3.0f%%",
			gaugeBar(pct(m.value("vms_global_mb"), m.global("vm_total_mb")), 28),
			m.value("vms_global_mb"), m.global("vm_total_mb"),
			m.value("rss_mb"), m.value("vms_mb"),
			pct(m.value("swap_used_mb"), m.global("swap_total_mb"))))

	ioCard := card("IO",
		fmt.Sprintf("Process R/W: %.0f / %.0f MB (%.0f / %.0f ops)\nHost    R/W: %.0f / %.0f MB (%.0f / %.0f ops)",
			m.value("read_mb"), m.value("write_mb"), m.value("read_count"), m.value("write_count"),
			m.value("read_mb_global"), m.value("write_mb_global"),
			m.value("read_count_global"), m.value("write_count_global")))

	columns := []string{cpuCard, memCard, ioCard}
	if ids := m.gpuIDs(); len(ids) > 0 {
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			used := m.value(fmt.Sprintf("gpu_%d_mem_mb_global", id))
			total := m.global(fmt.Sprintf("gpu_%d_total_mb", id))
			lines = append(lines, fmt.Sprintf("gpu %d %s proc %.0f MiB",
				id, gaugeBar(pct(used, total), 12), m.value(fmt.Sprintf("gpu_%d_mem_mb", id))))
		}
		columns = append(columns, card("GPU", strings.Join(lines, "\n")))
	}

	parts := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, columns...)}
	if m.events != nil {
		parts = append(parts, card("Recent events", renderEvents(m.events, recentEvents)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("%d samples  q to quit", m.rows))
	if m.err != nil {
		footer += "  " + errStyle.Render(m.err.Error())
	}
	parts = append(parts, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

// renderEvents lists the last limit occurrences across all event names,
// ordered by start time.
func renderEvents(e *report.EventLog, limit int) string {
	type row struct {
		name string
		iv   report.Interval
	}
	var all []row
	for _, name := range e.Names {
		for _, iv := range e.Intervals[name] {
			all = append(all, row{name, iv})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].iv.Start < all[j].iv.Start })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-6s %s\n", "event", "id", "elapsed")
	for _, r := range all {
		elapsed := "running"
		if r.iv.Complete() {
			elapsed = fmt.Sprintf("%.3fs", r.iv.Elapsed())
		} else if !r.iv.HasStart {
			elapsed = "no start"
		}
		fmt.Fprintf(&b, "%-20s %-6s %s\n", truncate(r.name, 20), truncate(r.iv.ID, 6), elapsed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pct(used, total float64) float64 {
	if total == 0 {
		return 0
	}
	return used * 100 / total
}

// RunTUI starts the Bubble Tea program.
func RunTUI(cfg config.Config) error {
	m := New(cfg)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	if m.cancel != nil {
		m.cancel()
	}
	return err
}
