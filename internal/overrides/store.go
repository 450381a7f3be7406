// Package overrides persists the simulator's away flag and forced device
// states across restarts.
package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// State is the persisted document. Overrides maps "room/device" to "on" or "off".
type State struct {
	AwayMode  bool              `json:"awayMode"`
	Overrides map[string]string `json:"overrides"`
}

func (s State) Equal(o State) bool {
	return s.AwayMode == o.AwayMode && maps.Equal(s.Overrides, o.Overrides)
}

// Key is the Overrides key of a device.
func Key(room, device string) string {
	return room + "/" + device
}

type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps State in a JSON file.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last State
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the file. A missing file yields the zero state.
func (s *FileStore) Load() (State, error) {
	state, err := s.read()
	if err != nil {
		return State{Overrides: map[string]string{}}, err
	}
	s.mu.Lock()
	s.last = state
	s.mu.Unlock()
	return state, nil
}

func (s *FileStore) read() (State, error) {
	state := State{Overrides: map[string]string{}}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("reading overrides: %w", err)
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return State{Overrides: map[string]string{}}, fmt.Errorf("decoding overrides: %w", err)
	}
	if state.Overrides == nil {
		state.Overrides = map[string]string{}
	}
	return state, nil
}

// Save writes state atomically by renaming a temporary file over the target.
func (s *FileStore) Save(state State) error {
	if state.Overrides == nil {
		state.Overrides = map[string]string{}
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding overrides: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating overrides dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing overrides: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing overrides: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing overrides: %w", err)
	}
	s.last = cloneState(state)
	return nil
}

// Watch calls onChange whenever the file is changed by someone other than
// this store, until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func(State)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("creating overrides dir: %w", err)
	}
	// The directory is watched because Save replaces the file.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				s.reload(onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("overrides watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *FileStore) reload(onChange func(State)) {
	state, err := s.read()
	if err != nil {
		// Editors often write in several steps; the next event retries.
		s.logger.Debug("overrides not readable yet", zap.Error(err))
		return
	}
	s.mu.Lock()
	changed := !state.Equal(s.last)
	if changed {
		s.last = cloneState(state)
	}
	s.mu.Unlock()
	if changed {
		s.logger.Info("overrides changed on disk", zap.String("path", s.path))
		onChange(state)
	}
}

func cloneState(s State) State {
	return State{AwayMode: s.AwayMode, Overrides: maps.Clone(s.Overrides)}
}
