package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
)

// RowDecoder decodes a resource log that is still being written. Bytes are
// fed as they arrive; only complete lines are decoded, so a partially
// written trailing row is held back until its newline shows up.
type RowDecoder struct {
	Banner  string
	Global  map[string]int64
	Columns []string

	buf  []byte
	line int
}

func NewRowDecoder() *RowDecoder { return &RowDecoder{} }

// Ready reports whether the header has been decoded.
func (d *RowDecoder) Ready() bool { return d.Columns != nil }

// Feed consumes p and returns the rows it completed, each aligned with
// Columns.
func (d *RowDecoder) Feed(p []byte) ([][]float64, error) {
	d.buf = append(d.buf, p...)
	var rows [][]float64
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return rows, nil
		}
		line := strings.TrimRight(string(d.buf[:i]), "\r")
		d.buf = d.buf[i+1:]
		d.line++
		switch d.line {
		case 1:
			d.Banner = line
		case 2:
			g, err := ParseGlobalInfo(line)
			if err != nil {
				return rows, err
			}
			d.Global = g
		case 3:
			d.Columns = strings.Split(line, model.Separator)
		default:
			if line == "" {
				continue
			}
			row, err := d.decodeRow(line)
			if err != nil {
				return rows, err
			}
			rows = append(rows, row)
		}
	}
}

func (d *RowDecoder) decodeRow(line string) ([]float64, error) {
	fields := strings.Split(line, model.Separator)
	if len(fields) != len(d.Columns) {
		return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
			errdefs.ErrMalformedLog, d.line, len(fields), len(d.Columns))
	}
	row := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad value %q", errdefs.ErrMalformedLog, d.line, f)
		}
		row[i] = v
	}
	return row, nil
}
