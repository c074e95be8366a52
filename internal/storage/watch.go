package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindd/pkg/logx"
)

// Watch calls onChange after the backend file at path (or its sqlite
// -wal/-journal companions) changes, debounced, until ctx is done.
// The parent directory is watched so atomic renames are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, log logx.Logger, onChange func()) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Debug("storage watcher started", logx.String("path", path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isBackendFile(filepath.Base(ev.Name), base) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() == nil {
					onChange()
				}
			})
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("storage watch error", logx.Err(err))
		}
	}
}

func isBackendFile(name, base string) bool {
	if name == base {
		return true
	}
	rest, ok := strings.CutPrefix(name, base)
	return ok && (rest == "-wal" || rest == "-journal")
}
