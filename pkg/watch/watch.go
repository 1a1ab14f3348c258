package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long File waits after the last event before reloading.
const DefaultSettle = 50 * time.Millisecond

type options struct {
	settle time.Duration
	name   string
}

// Option configures File.
type Option func(*options)

// WithSettle sets the quiet period before a reload. Zero reloads on every
// event.
func WithSettle(d time.Duration) Option {
	return func(o *options) { o.settle = d }
}

// WithName sets the log prefix, e.g. "config".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// File calls load on path each time it changes and passes the result to
// onChange. A failed load is logged and the previous value stays in effect.
// File returns an error if path does not exist or cannot be watched, and nil
// once ctx is cancelled.
func File[T any](ctx context.Context, path string, load func(string) (T, error), onChange func(T), opts ...Option) error {
	o := options{settle: DefaultSettle, name: "watch"}
	for _, opt := range opts {
		opt(&o)
	}

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%s: new watcher: %w", o.name, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%s: watch %s: %w", o.name, filepath.Dir(path), err)
	}
	slog.Info(o.name+": watching for changes", "path", path)

	// settle fires once the burst of events for path has gone quiet.
	settle := time.NewTimer(0)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	reload := func() {
		v, err := load(path)
		if err != nil {
			slog.Error(o.name+": reload failed, keeping previous", "path", path, "err", err)
			return
		}
		slog.Info(o.name+": reloaded", "path", path)
		onChange(v)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if o.settle <= 0 {
				reload()
				continue
			}
			settle.Reset(o.settle)

		case <-settle.C:
			reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error(o.name+": watcher error", "err", err)
		}
	}
}
