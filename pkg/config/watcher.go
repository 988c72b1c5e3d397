package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of writes to a watched profile.
const DefaultReloadDelay = 100 * time.Millisecond

// Watcher reloads a profile whenever its file changes.
type Watcher struct {
	loader *Loader
	path   string
	delay  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
}

// NewWatcher creates a watcher for the profile at path.
func NewWatcher(loader *Loader, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		path:   filepath.Clean(path),
		delay:  DefaultReloadDelay,
		logger: logger.With().Str("component", "profile-watcher").Str("path", path).Logger(),
		done:   make(chan struct{}),
	}
}

// SetDelay changes the debounce delay. It must be called before Start.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Start watches the profile's directory, since editors often replace the
// file instead of writing it, and calls reloadFn with every reloaded
// profile or load error until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context, reloadFn func(*Profile, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().Msg("Started watching profile")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*Profile, error)) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Profile changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				profile, err := w.loader.Load(ctx, w.path)
				if err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload profile")
				} else {
					w.logger.Info().Str("profile", profile.Name).Msg("Profile reloaded")
				}
				reloadFn(profile, err)
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// Close stops watching and waits for the event goroutine to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	started := w.watcher != nil
	w.mu.Unlock()
	if !started {
		return nil
	}

	w.stop()
	<-w.done
	return nil
}
