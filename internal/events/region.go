package events

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
)

// Token is an open occurrence of a named region. End it exactly once,
// typically with defer.
type Token struct {
	l    *Logger
	name string
	id   string
	once sync.Once
	err  error
}

// Region logs the start of a new occurrence of name. Occurrences of the same
// name share one counter, so nested or concurrent regions get distinct ids.
//
//	defer log.Region("load").End()
func (l *Logger) Region(name string) *Token {
	t := &Token{l: l, name: name, id: strconv.Itoa(l.next(name))}
	if err := l.LogStart(name, t.id); err != nil {
		t.err = err
		logutil.GetLogger().Warn("region start not logged", zap.String("region", name), zap.Error(err))
	}
	return t
}

// ID is the occurrence id assigned to this region.
func (t *Token) ID() string { return t.id }

// End logs the end of the region. Later calls return the first result.
func (t *Token) End() error {
	t.once.Do(func() {
		if t.err != nil {
			return
		}
		t.err = t.l.LogEnd(t.name, t.id)
	})
	return t.err
}

// Wrap returns fn instrumented with start/end records under name, one
// occurrence per call. The end is logged even when fn panics.
func (l *Logger) Wrap(name string, fn func() error) func() error {
	var mu sync.Mutex
	calls := 0
	return func() (err error) {
		mu.Lock()
		calls++
		id := strconv.Itoa(calls)
		mu.Unlock()

		if err := l.LogStart(name, id); err != nil {
			return err
		}
		defer func() {
			if endErr := l.LogEnd(name, id); endErr != nil && err == nil {
				err = endErr
			}
		}()
		return fn()
	}
}
