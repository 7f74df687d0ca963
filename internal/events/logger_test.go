package events

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/resource_monitor/internal/errdefs"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur := t
		t = t.Add(step)
		return cur
	}
}

func TestLogStartEndLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)
	l.now = fixedClock(time.UnixMicro(1_000_000), 500*time.Millisecond)

	require.NoError(t, l.LogStart("load", "1"))
	require.NoError(t, l.LogEnd("load", "1"))
	require.NoError(t, l.LogStart("save", ""))

	assert.Equal(t, "1.000000,start,load,1\n1.500000,end,load,1\n2.000000,start,save,\n", buf.String())
}

func TestLogRejectsSeparator(t *testing.T) {
	l := NewWriter(&bytes.Buffer{})
	assert.ErrorIs(t, l.LogStart("a,b", ""), errdefs.ErrInvalidArgument)
	require.NoError(t, l.Open())
	assert.ErrorIs(t, l.LogEnd("a,b", ""), errdefs.ErrInvalidArgument)
}

func TestLogEndBeforeOpen(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "events.log"))
	err := l.LogEnd("load", "1")
	assert.ErrorIs(t, err, errdefs.ErrInvalidState)
}

func TestFileIsTruncatedAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	l := New(path)
	assert.Equal(t, path, l.Path())

	require.NoError(t, l.LogStart("x", "1"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.True(t, strings.HasSuffix(string(data), ",start,x,1\n"))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.LogEnd("x", "1"), errdefs.ErrInvalidState)
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := l.Region("work")
				assert.NoError(t, tok.End())
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 16*100*2)
	for _, line := range lines {
		assert.Len(t, strings.Split(line, ","), 4, line)
	}
}

func TestRegionCountsOccurrences(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	a := l.Region("step")
	b := l.Region("step")
	assert.Equal(t, "1", a.ID())
	assert.Equal(t, "2", b.ID())
	require.NoError(t, b.End())
	require.NoError(t, a.End())
	require.NoError(t, a.End())
	assert.Equal(t, 4, strings.Count(buf.String(), "\n"))
}

func TestRegionEndsOnPanic(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	func() {
		defer func() { _ = recover() }()
		defer l.Region("boom").End()
		panic("body failed")
	}()
	assert.Contains(t, buf.String(), ",end,boom,1\n")

	next := l.Region("boom")
	assert.Equal(t, "2", next.ID())
}

func TestWrap(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)
	want := errors.New("failed")
	calls := 0
	fn := l.Wrap("compute", func() error {
		calls++
		if calls == 2 {
			return want
		}
		return nil
	})

	require.NoError(t, fn())
	assert.ErrorIs(t, fn(), want)
	out := buf.String()
	assert.Contains(t, out, ",start,compute,1\n")
	assert.Contains(t, out, ",end,compute,2\n")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestCloseProvidedStreamIsNoop(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)
	require.NoError(t, l.LogStart("a", ""))
	require.NoError(t, l.Close())
	require.NoError(t, l.LogEnd("a", ""))
}
