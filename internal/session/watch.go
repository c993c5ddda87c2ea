package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the session whenever the file at path changes, so a login
// or logout by another process reaches the subscribers. It runs until ctx
// is done.
//
// The parent directory is watched rather than the file, because saves
// replace the file by rename.
func (c *Context) Watch(ctx context.Context, path string) error {
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start session watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					c.logger.Warn("failed to reload session", zap.String("path", path), zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.logger.Warn("session watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
