package prefs

import (
	"context"
	"errors"
	"sync"

	"emojilens/internal/store"
)

// SQLiteStore keeps preferences in the emojilens database.
type SQLiteStore struct {
	db *store.Store

	mu  sync.Mutex
	cur Preferences
	hub Hub
}

// OpenSQLite opens the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("preferences database path is empty")
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	cur, err := s.Load(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.cur = cur
	return s, nil
}

// DB returns the underlying store.
func (s *SQLiteStore) DB() *store.Store {
	return s.db
}

func (s *SQLiteStore) Load(ctx context.Context) (Preferences, error) {
	values, err := s.db.LoadPreferences(ctx)
	if err != nil {
		return Preferences{}, err
	}
	return FromMap(values).Normalize(), nil
}

func (s *SQLiteStore) Save(ctx context.Context, p Preferences) error {
	p = p.Normalize()
	if err := s.db.SavePreferences(ctx, p.Map()); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cur
	s.cur = p
	s.mu.Unlock()

	s.hub.Publish(NewChange(old, p))
	return nil
}

func (s *SQLiteStore) Subscribe(fn func(Change)) func() {
	return s.hub.Subscribe(fn)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
