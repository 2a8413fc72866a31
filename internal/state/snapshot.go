package state

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// Snapshot captures tracked positions and engine state at a point in time.
type Snapshot struct {
	Timestamp int64             `json:"timestamp"`
	Symbol    string            `json:"symbol"`
	State     EngineState       `json:"state"`
	Positions []schema.Position `json:"positions"`
}

// NewSnapshot builds a snapshot with positions sorted by ticket.
func NewSnapshot(symbol string, st *EngineState, positions []schema.Position) Snapshot {
	entries := make([]schema.Position, len(positions))
	copy(entries, positions)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Ticket < entries[j].Ticket
	})
	snap := Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Symbol:    symbol,
		Positions: entries,
	}
	if st != nil {
		snap.State = *st
	}
	return snap
}

// Store persists the latest snapshot.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns exception.ErrStorageNotFound when nothing was saved yet.
	Load(ctx context.Context, symbol string) (Snapshot, error)
}

// FileStore keeps one JSON snapshot per symbol in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(symbol string) string {
	return filepath.Join(s.dir, symbol+".snapshot.json")
}

// Save writes the snapshot atomically via a temp file rename.
func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	return WriteSnapshot(s.path(snap.Symbol), snap)
}

// Load reads the snapshot for symbol.
func (s *FileStore) Load(_ context.Context, symbol string) (Snapshot, error) {
	snap, err := ReadSnapshot(s.path(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, exception.ErrStorageNotFound
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Save stores a copy of snap.
func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Symbol] = snap
	return nil
}

// Load returns the last saved snapshot for symbol.
func (s *MemoryStore) Load(_ context.Context, symbol string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[symbol]
	if !ok {
		return Snapshot{}, exception.ErrStorageNotFound
	}
	return snap, nil
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir snapshot dir").With("dir", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot").With("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "rename snapshot").With("path", path)
	}
	return nil
}

// ReadSnapshot loads a snapshot from disk. A missing file is returned unwrapped.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot").With("path", path)
	}
	if snap.State.LastAccepted == nil {
		snap.State.LastAccepted = make(map[string]time.Time)
	}
	return snap, nil
}
