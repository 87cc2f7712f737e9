package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DebounceInterval lets editors finish a write + rename before the file is
// re-read.
const DebounceInterval = 100 * time.Millisecond

type windowsFile struct {
	Windows []int64 `yaml:"windows"`
}

// WindowSource holds the active reminder windows and can follow a YAML file of
// the form "windows: [3600, 86400]".
type WindowSource struct {
	mu      sync.RWMutex
	windows []int64
}

func NewWindowSource(windows []int64) (*WindowSource, error) {
	ws, err := NormalizeWindows(windows)
	if err != nil {
		return nil, err
	}
	return &WindowSource{windows: ws}, nil
}

func (s *WindowSource) Windows() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.windows)
}

func (s *WindowSource) Set(windows []int64) error {
	ws, err := NormalizeWindows(windows)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.windows = ws
	s.mu.Unlock()
	return nil
}

func LoadWindowsFile(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reminder windows file: %w", err)
	}
	var f windowsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reminder windows file: %w", err)
	}
	return NormalizeWindows(f.Windows)
}

func (s *WindowSource) reload(path string) {
	ws, err := LoadWindowsFile(path)
	if err != nil {
		slog.Warn("reminder windows reload failed, keeping previous windows", "path", path, "error", err)
		return
	}
	if err := s.Set(ws); err != nil {
		slog.Warn("reminder windows rejected", "path", path, "error", err)
		return
	}
	slog.Info("reminder windows reloaded", "path", path, "windows", ws)
}

// Watch loads path and then re-reads it whenever it changes until ctx is done.
// The parent directory is watched so atomic replaces are seen too.
func (s *WindowSource) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	watchDir := filepath.Dir(path)
	fileName := filepath.Base(path)
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch directory %s: %w", watchDir, err)
	}

	// load after the watch is in place so no edit in between is lost
	ws, err := LoadWindowsFile(path)
	if err != nil {
		return err
	}
	if err := s.Set(ws); err != nil {
		return err
	}
	slog.Info("watching reminder windows file", "path", path, "windows", ws)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(DebounceInterval, func() { s.reload(path) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", "error", err)
		}
	}
}
