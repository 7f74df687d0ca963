package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/resource_monitor/internal/logutil"
)

// pollEvery re-checks watched files in case a filesystem event was missed.
const pollEvery = time.Second

// tailer reads what was appended to a file since the previous read.
type tailer struct {
	path   string
	offset int64
}

func newTailer(path string) *tailer { return &tailer{path: path} }

// read returns the bytes appended since the last call. A file that shrank
// was truncated or replaced, so reading restarts at the top and reset is
// true. A file that does not exist yet reads as empty.
func (t *tailer) read() (p []byte, reset bool, err error) {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	size := st.Size()
	if size < t.offset {
		t.offset = 0
		reset = true
	}
	if size == t.offset {
		return nil, reset, nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, reset, err
	}
	p, err = io.ReadAll(io.LimitReader(f, size-t.offset))
	t.offset += int64(len(p))
	return p, reset, err
}

// watchFiles sends a path on changed whenever that file is created or
// written, and every pollEvery regardless. It runs until ctx is done.
func watchFiles(ctx context.Context, paths []string, changed chan<- string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	log := logutil.GetLogger().Named("watch")

	abs := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return err
		}
		abs[a] = p
		dirs[filepath.Dir(a)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	send := func(p string) {
		select {
		case changed <- p:
		case <-ctx.Done():
		}
	}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				p, watched := abs[filepath.Clean(ev.Name)]
				if !watched || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				send(p)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Debug("file watcher error", zap.Error(err))
			case <-ticker.C:
				for _, p := range paths {
					send(p)
				}
			}
		}
	}()
	return nil
}
