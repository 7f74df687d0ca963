package report

import (
	"math"
	"sort"
)

// Stat summarizes one resource column.
type Stat struct {
	Name string
	Min  float64
	Max  float64
	Mean float64
}

// Summarize returns min/peak/mean for every column except time, in header
// order. Empty logs yield zero stats.
func Summarize(r *ResourceLog) []Stat {
	var out []Stat
	for _, name := range r.Columns {
		if name == "time" {
			continue
		}
		s := r.Series[name]
		st := Stat{Name: name}
		n := s.Len()
		if n > 0 {
			st.Min, st.Max = math.Inf(1), math.Inf(-1)
			sum := 0.0
			for i := 0; i < n; i++ {
				v := s.At(i)
				sum += v
				st.Min = math.Min(st.Min, v)
				st.Max = math.Max(st.Max, v)
			}
			st.Mean = sum / float64(n)
		}
		out = append(out, st)
	}
	return out
}

// EventStat summarizes the occurrences of one event.
type EventStat struct {
	Name        string
	Count       int
	Incomplete  int
	MeanElapsed float64
	MaxElapsed  float64
}

// SummarizeEvents returns per-event counts and elapsed times in first-seen
// order. Incomplete occurrences are counted but left out of the timings.
func SummarizeEvents(e *EventLog) []EventStat {
	out := make([]EventStat, 0, len(e.Names))
	for _, name := range e.Names {
		st := EventStat{Name: name}
		sum, n := 0.0, 0
		for _, iv := range e.Intervals[name] {
			st.Count++
			if !iv.Complete() {
				st.Incomplete++
				continue
			}
			sum += iv.Elapsed()
			st.MaxElapsed = math.Max(st.MaxElapsed, iv.Elapsed())
			n++
		}
		if n > 0 {
			st.MeanElapsed = sum / float64(n)
		}
		out = append(out, st)
	}
	return out
}

// Usage is the resource picture during one event occurrence: the peak of
// every column over the samples taken between start and end.
type Usage struct {
	Name    string
	ID      string
	Elapsed float64
	Samples int
	Peak    map[string]float64
}

// EventUsage aligns complete event occurrences with the resource samples
// taken inside them. Occurrences shorter than one sampling interval may see
// no samples.
func EventUsage(e *EventLog, r *ResourceLog) []Usage {
	times := r.Series["time"].Float
	var out []Usage
	for _, name := range e.Names {
		for _, iv := range e.Intervals[name] {
			if !iv.Complete() {
				continue
			}
			u := Usage{Name: name, ID: iv.ID, Elapsed: iv.Elapsed(), Peak: make(map[string]float64)}
			lo := sort.SearchFloat64s(times, iv.Start)
			for i := lo; i < len(times) && times[i] <= iv.End; i++ {
				u.Samples++
				for _, col := range r.Columns {
					if col == "time" {
						continue
					}
					v := r.Series[col].At(i)
					if prev, ok := u.Peak[col]; !ok || v > prev {
						u.Peak[col] = v
					}
				}
			}
			out = append(out, u)
		}
	}
	return out
}
