package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Live holds the current settings and swaps them when the file changes.
type Live struct {
	path    string
	current atomic.Pointer[Settings]

	mu        sync.Mutex
	listeners []func(Settings)
}

func NewLive(path string, initial Settings) *Live {
	l := &Live{path: path}
	l.current.Store(&initial)
	return l
}

// Get returns the active settings.
func (l *Live) Get() Settings {
	return *l.current.Load()
}

func (l *Live) Path() string {
	return l.path
}

// OnChange registers fn to run after each successful reload.
func (l *Live) OnChange(fn func(Settings)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Reload re-reads the settings file. Invalid contents leave the active
// settings untouched.
func (l *Live) Reload() error {
	s, err := Load(l.path)
	if err != nil {
		return err
	}
	l.current.Store(&s)

	l.mu.Lock()
	listeners := append([]func(Settings){}, l.listeners...)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
	return nil
}

// Watch reloads the settings whenever the file is written, created or
// renamed into place. It blocks until ctx is cancelled.
func (l *Live) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	// Watch the directory so editors that replace the file are seen too
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	slog.Info("Watching settings file", "path", l.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !l.relevant(event) {
				continue
			}
			if err := l.Reload(); err != nil {
				slog.Error("Failed to reload settings, keeping previous", "error", err, "path", l.path)
				continue
			}
			slog.Info("Settings reloaded", "path", l.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (l *Live) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(l.path) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
