package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path on every write or create event and passes the new
// fleet to onChange. A reload that fails to parse or validate is logged and
// the previous fleet stays active, as does a reload that would empty a
// non-empty fleet. Watch blocks until ctx is cancelled.
//
// The parent directory is watched so that saves which rename a temporary
// file over path are seen.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Fleet)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("fleet: watch: %w", err)
	}
	target := filepath.Clean(path)

	last := 0
	if f, err := Load(path); err == nil {
		last = f.Len()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	logger.Info("fleet: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			f, err := Load(path)
			if err != nil {
				logger.Error("fleet: reload failed, keeping previous fleet", "path", path, "err", err)
				continue
			}
			if f.Len() == 0 && last > 0 {
				logger.Warn("fleet: reload is empty, keeping previous fleet", "path", path, "vehicles", last)
				continue
			}
			last = f.Len()
			logger.Info("fleet: reloaded", "path", path, "vehicles", f.Len())
			onChange(f)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fleet: watcher error", "err", err)
		}
	}
}
