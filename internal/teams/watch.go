package teams

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Source is a reloadable handle on the team map. Readers always see a
// complete snapshot; Reload swaps the snapshot atomically and keeps the old
// one when the new file fails to parse.
type Source struct {
	fsys afero.Fs
	path string

	mu sync.RWMutex
	m  *Map
}

// NewSource loads the map at path and returns a handle that can reload it.
func NewSource(fsys afero.Fs, path string) (*Source, error) {
	m, err := Load(fsys, path)
	if err != nil {
		return nil, err
	}
	return &Source{fsys: fsys, path: path, m: m}, nil
}

// Map returns the current snapshot.
func (s *Source) Map() *Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m
}

// Resolve resolves against the current snapshot, so holders of a Source see
// reloads without re-wiring.
func (s *Source) Resolve(names []string) []string {
	return s.Map().Resolve(names)
}

// Path returns the underlying file path.
func (s *Source) Path() string { return s.path }

// Reload re-reads the file and swaps the snapshot. On error the previous
// snapshot stays in place.
func (s *Source) Reload() error {
	m, err := Load(s.fsys, s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
	return nil
}

// Watcher reloads a Source when its file changes on disk, so the long-running
// mcp server picks up team edits without a restart. The parent directory is
// watched because editors replace files by rename.
type Watcher struct {
	src     *Source
	watcher *fsnotify.Watcher
	onSwap  func(*Map)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher wraps src. onSwap, when non-nil, runs after each successful
// reload.
func NewWatcher(src *Source, onSwap func(*Map)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{src: src, watcher: fw, onSwap: onSwap, ctx: ctx, cancel: cancel}, nil
}

// Start begins watching and returns immediately.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.src.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	target := filepath.Clean(w.src.Path())
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// Rename fires while the replacement file is still being
			// written; the reload error path keeps the old snapshot and
			// the follow-up Create event retries.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.src.Reload(); err != nil {
				slog.Warn("team map reload failed, keeping previous map", "path", target, "error", err)
				continue
			}
			slog.Debug("team map reloaded", "path", target, "teams", w.src.Map().Len())
			if w.onSwap != nil {
				w.onSwap(w.src.Map())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("team map watch error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}
