package meta

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch clears the registry cache whenever a file under paths is written,
// created, removed or renamed. Directories are watched recursively, including
// ones created after Watch starts. It blocks until ctx is done.
func Watch(ctx context.Context, reg *Registry, logger *slog.Logger, paths ...string) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range paths {
		if err := addTree(watcher, root); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("model watcher add failed", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
				}
			}
			reg.ClearCache()
			logger.Info("model cache cleared", slog.String("path", event.Name), slog.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("model watcher error", slog.String("error", err.Error()))
		}
	}
}

// addTree watches root and every directory below it.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == root {
			return watcher.Add(path)
		}
		return nil
	})
}
