package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danudenny/geoapi-saas/internal/cache"
	"github.com/danudenny/geoapi-saas/internal/cache/keys"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager loads, mutates and saves session state. Updates to one session are
// serialized; different sessions proceed in parallel.
type Manager struct {
	store     cache.Interface
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
	now       func() time.Time // for tests

	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewManager(store cache.Interface, ttl, opTimeout time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Manager{
		store:     store,
		ttl:       ttl,
		opTimeout: opTimeout,
		logger:    logger,
		now:       time.Now,
		locks:     map[string]*lockEntry{},
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	e := m.locks[id]
	if e == nil {
		e = &lockEntry{}
		m.locks[id] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) load(ctx context.Context, id string) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	b, err := m.store.Get(ctx, keys.Session(id))
	if errors.Is(err, cache.ErrNotFound) {
		return NewState(id, m.now()), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		m.logger.WarnContext(ctx, "discarding undecodable session", "err", err)
		return NewState(id, m.now()), nil
	}
	s.ID = id
	return s, nil
}

func (m *Manager) save(ctx context.Context, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	if err := m.store.Set(ctx, keys.Session(s.ID), b, m.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the current state, or a fresh one for an unknown id.
func (m *Manager) Get(ctx context.Context, id string) (State, error) {
	unlock := m.lock(id)
	defer unlock()
	return m.load(ctx, id)
}

// Update runs fn on the state under the session lock and saves the result.
// When fn fails nothing is saved.
func (m *Manager) Update(ctx context.Context, id string, fn func(*State) error) (State, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return State{}, err
	}
	if err := fn(&s); err != nil {
		return s, err
	}
	s.UpdatedAt = m.now()
	if err := m.save(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}

// Delete drops the session. A late upload response for it is discarded
// because the recreated state starts from a new generation.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()
	if err := m.store.Del(ctx, keys.Session(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
