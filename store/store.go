// Package store holds ledger.Store implementations.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arnaudstdr/bot-trade/ledger"
)

// File keeps the ledger as one JSON document. Saves replace the file
// atomically so a crash leaves either the old or the new state.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Load() (ledger.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("read %s: %w", f.path, err)
	}

	var s ledger.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return s, true, nil
}

func (f *File) Save(s ledger.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// Memory keeps snapshots in process; used by tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	snap  ledger.Snapshot
	saved bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load() (ledger.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), m.saved, nil
}

func (m *Memory) Save(s ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s.Clone()
	m.saved = true
	return nil
}
