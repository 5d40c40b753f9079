package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader implements ports.DefinitionLoader and ports.Watchable over a
// directory of machine files (.yaml, .yml, .json). A machine is named after
// its file without the extension.
type Loader struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDebounce sets how long Watch waits for a burst of file events to settle.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) { l.debounce = d }
}

// WithLogger sets the logger used to report watcher errors.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader over dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:      dir,
		debounce: 100 * time.Millisecond,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func formatOf(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return "yaml", true
	case ".json":
		return "json", true
	}
	return "", false
}

func (l *Loader) files() (map[string]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := formatOf(entry.Name()); !ok {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if prev, dup := out[name]; dup {
			return nil, fmt.Errorf("machine %q is defined by both %s and %s", name, prev, entry.Name())
		}
		out[name] = entry.Name()
	}
	return out, nil
}

// GetDefinition reads the file of a machine.
func (l *Loader) GetDefinition(name string) ([]byte, string, error) {
	files, err := l.files()
	if err != nil {
		return nil, "", err
	}
	file, ok := files[name]
	if !ok {
		return nil, "", fmt.Errorf("machine not found: %s", name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, file))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read machine %s: %w", name, err)
	}
	format, _ := formatOf(file)
	return data, format, nil
}

// ListDefinitions returns the machine names found in the directory.
func (l *Loader) ListDefinitions() ([]string, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names) // Deterministic order
	return names, nil
}

// Watch implements ports.Watchable.
// Bursts of writes (editors often write, rename and chmod) collapse into one signal.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if _, relevant := formatOf(evt.Name); !relevant || evt.Op == fsnotify.Chmod {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(l.debounce)
				} else {
					timer.Reset(l.debounce)
				}
				fire = timer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("definition watcher error", "dir", l.dir, "error", err)
			case <-fire:
				fire = nil
				select {
				case ch <- struct{}{}:
				default: // a signal is already pending
				}
			}
		}
	}()
	return ch, nil
}
