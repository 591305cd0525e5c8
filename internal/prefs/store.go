package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store persists preferences and reports changes.
type Store interface {
	// Load returns the persisted preferences, defaulting missing keys.
	Load(ctx context.Context) (Preferences, error)
	// Save normalizes and persists p, then notifies subscribers of any change.
	Save(ctx context.Context, p Preferences) error
	// Subscribe registers fn for changes.
	Subscribe(fn func(Change)) (cancel func())
	Close() error
}

// Backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Logger  *slog.Logger
}

// Open returns the configured store. When the backend cannot be opened it
// returns an in-memory store holding the defaults together with the error,
// so callers can log and carry on.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(Defaults()), nil
	case BackendFile:
		s, err := OpenFile(opts.Path, logger)
		if err != nil {
			return NewMemoryStore(Defaults()), err
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return NewMemoryStore(Defaults()), err
		}
		return s, nil
	default:
		return NewMemoryStore(Defaults()), fmt.Errorf("unknown preferences backend %q", opts.Backend)
	}
}

// MemoryStore keeps preferences for the life of the process.
type MemoryStore struct {
	mu  sync.Mutex
	cur Preferences
	hub Hub
}

// NewMemoryStore returns a store holding initial.
func NewMemoryStore(initial Preferences) *MemoryStore {
	return &MemoryStore{cur: initial.Normalize()}
}

func (s *MemoryStore) Load(context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

func (s *MemoryStore) Save(_ context.Context, p Preferences) error {
	p = p.Normalize()
	s.mu.Lock()
	old := s.cur
	s.cur = p
	s.mu.Unlock()

	s.hub.Publish(NewChange(old, p))
	return nil
}

func (s *MemoryStore) Subscribe(fn func(Change)) func() {
	return s.hub.Subscribe(fn)
}

func (s *MemoryStore) Close() error {
	return nil
}

// Update loads, applies fn and saves.
func Update(ctx context.Context, s Store, fn func(Preferences) Preferences) (Preferences, error) {
	cur, err := s.Load(ctx)
	if err != nil {
		return Preferences{}, err
	}
	next := fn(cur).Normalize()
	if err := s.Save(ctx, next); err != nil {
		return Preferences{}, err
	}
	return next, nil
}
