// Package events records the start and end of named application events
// (function calls, code regions) as an append-only CSV log.
package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
	"github.com/Dicklesworthstone/resource_monitor/internal/model"
)

// Logger appends one line per LogStart/LogEnd call. It is safe for
// concurrent use; each call writes exactly one complete line.
type Logger struct {
	mu     sync.Mutex
	path   string
	out    io.Writer
	file   *os.File
	opened bool
	now    func() time.Time

	counters map[string]int
}

// New returns a logger that creates (truncating) path on the first LogStart.
func New(path string) *Logger {
	return &Logger{path: path, now: time.Now, counters: make(map[string]int)}
}

// NewWriter returns a logger writing to w, or to stdout when w is nil.
// The writer is never closed by the logger.
func NewWriter(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{out: w, now: time.Now, counters: make(map[string]int)}
}

// Path is the file the logger writes to, or "" for a provided stream.
func (l *Logger) Path() string { return l.path }

// Open opens the sink without logging anything.
func (l *Logger) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open()
}

func (l *Logger) open() error {
	if l.opened {
		return nil
	}
	if l.out == nil {
		f, err := os.Create(l.path)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		l.file, l.out = f, f
	}
	l.opened = true
	return nil
}

// LogStart records the start of an occurrence of name. id may be empty.
func (l *Logger) LogStart(name, id string) error {
	if err := checkName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.open(); err != nil {
		return err
	}
	return l.write(model.PhaseStart, name, id)
}

// LogEnd records the end of an occurrence of name. The sink must already be
// open.
func (l *Logger) LogEnd(name, id string) error {
	if err := checkName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.opened {
		return fmt.Errorf("%w: end of %q logged before any start", errdefs.ErrInvalidState, name)
	}
	return l.write(model.PhaseEnd, name, id)
}

func (l *Logger) write(phase model.Phase, name, id string) error {
	if l.out == nil {
		return fmt.Errorf("%w: event log already closed", errdefs.ErrInvalidState)
	}
	rec := model.EventRecord{Time: l.now(), Phase: phase, Name: name, ID: id}
	_, err := io.WriteString(l.out, rec.Line()+"\n")
	return err
}

// next returns the next occurrence number for name, starting at 1.
func (l *Logger) next(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[name]++
	return l.counters[name]
}

// Close closes the file the logger opened. Closing twice, or closing a
// logger over a provided stream, is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.out = nil, nil
	return err
}

func checkName(name string) error {
	if strings.Contains(name, model.Separator) {
		return fmt.Errorf("%w: event name %q contains %q", errdefs.ErrInvalidArgument, name, model.Separator)
	}
	return nil
}
