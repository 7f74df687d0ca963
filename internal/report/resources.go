package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
)

// Series is one column of the resource log. Exactly one of Float and Int is
// set, depending on model.IsFloatColumn.
type Series struct {
	Name  string
	Float []float64
	Int   []int64
}

// IsFloat reports whether the column decodes as floating point.
func (s Series) IsFloat() bool { return model.IsFloatColumn(s.Name) }

func (s Series) Len() int {
	if s.IsFloat() {
		return len(s.Float)
	}
	return len(s.Int)
}

// At returns row i as a float64 regardless of the column type.
func (s Series) At(i int) float64 {
	if s.IsFloat() {
		return s.Float[i]
	}
	return float64(s.Int[i])
}

// ResourceLog is a parsed resource log.
type ResourceLog struct {
	Banner  string
	Global  map[string]int64
	Columns []string
	Series  map[string]Series
}

// Rows is the number of data rows.
func (r *ResourceLog) Rows() int {
	if len(r.Columns) == 0 {
		return 0
	}
	return r.Series[r.Columns[0]].Len()
}

// ParseResourceLog reads a resource log written by the sampler: a banner,
// the global info line, the header and then one row per sample. Data fields
// are read as one flat sequence and reshaped by header width.
func ParseResourceLog(path string) (*ResourceLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readResourceLog(f, path)
}

func readResourceLog(r io.Reader, path string) (*ResourceLog, error) {
	br := bufio.NewReader(r)
	banner, global, columns, err := readPreamble(br, path)
	if err != nil {
		return nil, err
	}

	var values []float64
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			for _, field := range strings.Split(line, model.Separator) {
				v, perr := strconv.ParseFloat(strings.TrimSpace(field), 64)
				if perr != nil {
					return nil, fmt.Errorf("%w: %s: bad value %q", errdefs.ErrMalformedLog, path, field)
				}
				values = append(values, v)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(values)%len(columns) != 0 {
		return nil, fmt.Errorf("%w: %s: %d values do not fill rows of %d columns",
			errdefs.ErrMalformedLog, path, len(values), len(columns))
	}

	rows := len(values) / len(columns)
	log := &ResourceLog{Banner: banner, Global: global, Columns: columns, Series: make(map[string]Series, len(columns))}
	for c, name := range columns {
		s := Series{Name: name}
		if s.IsFloat() {
			s.Float = make([]float64, rows)
		} else {
			s.Int = make([]int64, rows)
		}
		for row := 0; row < rows; row++ {
			v := values[row*len(columns)+c]
			if s.IsFloat() {
				s.Float[row] = v
			} else {
				s.Int[row] = int64(math.Trunc(v))
			}
		}
		log.Series[name] = s
	}
	return log, nil
}

func readPreamble(br *bufio.Reader, path string) (banner string, global map[string]int64, columns []string, err error) {
	var lines [3]string
	for i := range lines {
		line, rerr := br.ReadString('\n')
		if rerr != nil && (rerr != io.EOF || line == "") {
			if rerr == io.EOF {
				return "", nil, nil, fmt.Errorf("%w: %s: missing preamble line %d", errdefs.ErrMalformedLog, path, i+1)
			}
			return "", nil, nil, rerr
		}
		lines[i] = strings.TrimRight(line, "\r\n")
	}
	global, err = ParseGlobalInfo(lines[1])
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if lines[2] == "" {
		return "", nil, nil, fmt.Errorf("%w: %s: empty header", errdefs.ErrMalformedLog, path)
	}
	return lines[0], global, strings.Split(lines[2], model.Separator), nil
}

// ParseGlobalInfo decodes a "key:value,key:value" line.
func ParseGlobalInfo(line string) (map[string]int64, error) {
	out := make(map[string]int64)
	if line == "" {
		return out, nil
	}
	for _, pair := range strings.Split(line, model.Separator) {
		key, val, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: global info entry %q", errdefs.ErrMalformedLog, pair)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: global info value %q", errdefs.ErrMalformedLog, pair)
		}
		out[key] = n
	}
	return out, nil
}
