package model

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the artifact whenever its file is written, created or renamed
// into place. The containing directory is watched so editors and deploy
// tools that replace the file atomically are picked up. Changes are debounced.
// Watch returns once the watcher is set up; it stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.config.Path == "" {
		return fmt.Errorf("watch model %s: path is not configured", s.config.Name)
	}

	path, err := filepath.Abs(s.config.Path)
	if err != nil {
		return fmt.Errorf("watch model %s: %w", s.config.Name, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch model %s: %w", s.config.Name, err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch model %s: %w", s.config.Name, err)
	}

	go s.watchLoop(ctx, fsw, path)

	s.logger.Info("Model watcher started",
		"path", path,
		"debounce", s.config.GetDebounce())
	return nil
}

func (s *Store) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	defer fsw.Close()

	debounce := s.config.GetDebounce()
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	var pending bool
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = true
				lastEvent = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			s.logger.Error("Model watcher error", "error", err)

		case <-ticker.C:
			if !pending || time.Since(lastEvent) < debounce {
				continue
			}
			pending = false
			if err := s.Load(ctx); err != nil {
				s.logger.Debug("Reload after file change failed", "error", err)
			}
		}
	}
}
