package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"emojilens/internal/annotate"
	"emojilens/internal/dom"
	"emojilens/internal/metrics"
	"emojilens/internal/prefs"
)

// Manager tracks live sessions and keeps them in step with the
// preferences store.
type Manager struct {
	store   prefs.Store
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	cancel   func()
}

// NewManager subscribes to store. opts.Preferences is ignored; each new
// session starts from the store's current preferences.
func NewManager(store prefs.Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Metrics = metrics.OrNew(opts.Metrics)
	m := &Manager{
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sessions: make(map[string]*Session),
	}
	m.cancel = store.Subscribe(m.broadcast)
	return m
}

func (m *Manager) broadcast(c prefs.Change) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("broadcasting preference change",
		"keys", c.Keys,
		"action", c.Action().String(),
		"sessions", len(sessions),
	)
	for _, s := range sessions {
		s.notify(c)
	}
}

// Create parses r as HTML, starts a session for it and runs the initial
// pass.
func (m *Manager) Create(ctx context.Context, r io.Reader) (*Session, annotate.Result, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, annotate.Result{}, err
	}

	p, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("preferences unavailable, using defaults", "error", err)
		p = prefs.Defaults()
	}

	id, err := newID()
	if err != nil {
		return nil, annotate.Result{}, err
	}

	opts := m.opts
	opts.Preferences = p
	s := New(id, doc, opts)
	res, err := s.Start(ctx)
	if err != nil {
		s.Close()
		return nil, annotate.Result{}, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.metrics.ActiveSessions.Inc()
	return s, res, nil
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close ends one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.metrics.ActiveSessions.Dec()
	return s.Close()
}

// IDs lists live session IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll ends every session and stops following the store.
func (m *Manager) CloseAll() {
	if m.cancel != nil {
		m.cancel()
	}
	for _, id := range m.IDs() {
		m.Close(id)
	}
}

func newID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
