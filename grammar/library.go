package grammar

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/logging"
)

//go:embed builtin/*.grammar
var builtinFS embed.FS

const (
	specExt          = ".grammar"
	debounceInterval = 300 * time.Millisecond
)

// ReloadCallback is called with the full grammar list after every reload.
type ReloadCallback func(grammars []Grammar)

// Library serves the built-in grammars plus any .grammar files found in a
// directory. Directory files override built-ins with the same name.
type Library struct {
	mu       sync.RWMutex
	dir      string
	grammars map[string]Grammar

	onReload ReloadCallback
	logger   *slog.Logger
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithOnReload registers a callback invoked after each successful reload,
// including the one Watch triggers on file changes.
func WithOnReload(cb ReloadCallback) LibraryOption {
	return func(l *Library) { l.onReload = cb }
}

// NewLibrary creates a library over dir. An empty dir serves only the
// built-in grammars.
func NewLibrary(dir string, opts ...LibraryOption) (*Library, error) {
	l := &Library{
		dir:    dir,
		logger: logging.WithComponent("grammar"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload rescans the directory and rebuilds the grammar set.
func (l *Library) Reload() error {
	grammars, err := loadBuiltins()
	if err != nil {
		return err
	}

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return fmt.Errorf("read grammar dir %s: %w", l.dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), specExt) {
				continue
			}
			path := filepath.Join(l.dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read grammar file %s: %w", path, err)
			}
			name := strings.TrimSuffix(entry.Name(), specExt)
			grammars[name] = Parse(name, string(data))
		}
	}

	l.mu.Lock()
	l.grammars = grammars
	cb := l.onReload
	l.mu.Unlock()

	l.logger.Debug("grammar library loaded", "count", len(grammars), "dir", l.dir)
	if cb != nil {
		cb(l.List())
	}
	return nil
}

// Get returns the grammar with the given name.
func (l *Library) Get(name string) (Grammar, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.grammars[name]
	if !ok {
		return Grammar{}, fmt.Errorf("grammar %q: %w", name, gferrors.ErrGrammarNotFound)
	}
	return g, nil
}

// List returns all grammars sorted by name.
func (l *Library) List() []Grammar {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Grammar, 0, len(l.grammars))
	for _, g := range l.grammars {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all grammar names sorted.
func (l *Library) Names() []string {
	grammars := l.List()
	names := make([]string, len(grammars))
	for i, g := range grammars {
		names[i] = g.Name
	}
	return names
}

// Watch reloads the library whenever a .grammar file in the directory
// changes. It returns after starting the watcher; watching stops when ctx
// is cancelled.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		return fmt.Errorf("grammar library has no directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	go l.watchLoop(ctx, watcher)
	return nil
}

// watchLoop processes fsnotify events with debouncing, so an editor's
// write-rename dance triggers one reload, not three.
func (l *Library) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, specExt) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				if err := l.Reload(); err != nil {
					l.logger.Warn("grammar reload failed", "error", err)
				} else {
					l.logger.Info("grammar library reloaded", "trigger", filepath.Base(event.Name))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("grammar watcher error", "error", err)
		}
	}
}

func loadBuiltins() (map[string]Grammar, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read built-in grammars: %w", err)
	}
	grammars := make(map[string]Grammar, len(entries))
	for _, entry := range entries {
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read built-in grammar %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), specExt)
		grammars[name] = Parse(name, string(data))
	}
	return grammars, nil
}
