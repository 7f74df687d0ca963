// Package report turns event and resource logs back into structured series.
package report

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
)

// Interval is one occurrence of an event. A phase that never appeared in the
// log leaves its timestamp at zero.
type Interval struct {
	ID       string
	Start    float64
	End      float64
	HasStart bool
	HasEnd   bool
}

// Elapsed is End-Start in seconds.
func (iv Interval) Elapsed() float64 { return iv.End - iv.Start }

// Complete reports whether both phases were logged.
func (iv Interval) Complete() bool { return iv.HasStart && iv.HasEnd }

// EventLog maps event names to their occurrences, in first-seen order.
type EventLog struct {
	Names     []string
	Intervals map[string][]Interval
}

// IncompleteInterval names an occurrence missing its start or its end.
type IncompleteInterval struct {
	Name string
	Interval
}

// Incomplete lists occurrences that lack a start or an end record.
func (e *EventLog) Incomplete() []IncompleteInterval {
	var out []IncompleteInterval
	for _, name := range e.Names {
		for _, iv := range e.Intervals[name] {
			if !iv.Complete() {
				out = append(out, IncompleteInterval{Name: name, Interval: iv})
			}
		}
	}
	return out
}

// Durations returns Elapsed for every occurrence of name.
func (e *EventLog) Durations(name string) []float64 {
	ivs := e.Intervals[name]
	out := make([]float64, len(ivs))
	for i, iv := range ivs {
		out[i] = iv.Elapsed()
	}
	return out
}

// ParseEventLog reads an event log written by events.Logger.
func ParseEventLog(path string) (*EventLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	log := &EventLog{Intervals: make(map[string][]Interval)}
	index := make(map[string]map[string]int)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, model.Separator)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %s:%d: want 4 fields, got %d", errdefs.ErrMalformedLog, path, lineNo, len(fields))
		}
		ts, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: bad timestamp %q", errdefs.ErrMalformedLog, path, lineNo, fields[0])
		}
		phase, name, id := model.Phase(fields[1]), fields[2], fields[3]

		ids, ok := index[name]
		if !ok {
			ids = make(map[string]int)
			index[name] = ids
			log.Names = append(log.Names, name)
		}
		i, ok := ids[id]
		if !ok {
			i = len(log.Intervals[name])
			ids[id] = i
			log.Intervals[name] = append(log.Intervals[name], Interval{ID: id})
		}
		iv := &log.Intervals[name][i]
		if phase == model.PhaseStart {
			iv.Start, iv.HasStart = ts, true
		} else {
			iv.End, iv.HasEnd = ts, true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return log, nil
}
