package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration each time the YAML file at path
// changes and passes every valid result to onChange. A reload that fails
// is passed to onError and the previous configuration stays in effect.
// Environment variables still override the file. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file by rename, which drops a watch on
	// the file itself, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if filepath.Clean(event.Name) != path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := load(path)
			if err != nil {
				onError(err)
				continue
			}

			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			onError(fmt.Errorf("watching config file: %w", err))
		}
	}
}
