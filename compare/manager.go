package compare

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/logging"
	"github.com/sweetpotato0/gramflow/store"
)

// Manager tracks one session per caller-supplied key, so a UI context (a
// browser tab, a CLI invocation, an MCP client) can never have two
// comparisons racing each other, and fronts the store for finished runs.
type Manager struct {
	backend Backend
	st      store.Store
	base    []Option
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions run against backend and
// persist to st; st may be nil when history is not wanted. The base
// options are applied to every session it opens.
func NewManager(backend Backend, st store.Store, base ...Option) *Manager {
	return &Manager{
		backend:  backend,
		st:       st,
		base:     base,
		logger:   logging.WithComponent("compare_manager"),
		sessions: make(map[string]*Session),
	}
}

// Open returns a fresh session bound to key. A key whose session is idle
// or finished is replaced; a key whose session is still running refuses
// with ErrSessionActive.
func (m *Manager) Open(key string, extra ...Option) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[key]; ok && cur.busy() {
		return nil, fmt.Errorf("%w: key %q", gferrors.ErrSessionActive, key)
	}
	opts := make([]Option, 0, len(m.base)+len(extra)+1)
	if m.st != nil {
		opts = append(opts, WithStore(m.st))
	}
	opts = append(opts, m.base...)
	opts = append(opts, extra...)
	sess := NewSession(m.backend, opts...)
	m.sessions[key] = sess
	m.logger.Debug("session opened", "key", key)
	return sess, nil
}

// Get returns the session bound to key.
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %q", gferrors.ErrSessionNotFound, key)
	}
	return sess, nil
}

// Find returns the session whose current run carries id. Sessions that
// were cleared or never started do not match.
func (m *Manager) Find(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.ID() == id {
			return sess, true
		}
	}
	return nil, false
}

// Cancel aborts the run owned by key.
func (m *Manager) Cancel(key string) error {
	sess, err := m.Get(key)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// Clear resets the session owned by key to idle.
func (m *Manager) Clear(key string) error {
	sess, err := m.Get(key)
	if err != nil {
		return err
	}
	sess.Clear()
	return nil
}

// Prune drops sessions that are idle or finished and returns how many
// went. Running sessions stay.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, sess := range m.sessions {
		if !sess.busy() {
			delete(m.sessions, key)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("pruned sessions", "count", n)
	}
	return n
}

// Len reports how many sessions are registered.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Runs lists finished runs from the store, newest first. A limit of zero
// or less means no limit.
func (m *Manager) Runs(ctx context.Context, limit int) ([]*store.Record, error) {
	if m.st == nil {
		return nil, nil
	}
	return m.st.List(ctx, limit)
}

// Run loads one finished run by id.
func (m *Manager) Run(ctx context.Context, id string) (*store.Record, error) {
	if m.st == nil {
		return nil, fmt.Errorf("%w: %s", gferrors.ErrRecordNotFound, id)
	}
	return m.st.Load(ctx, id)
}

// DeleteRun removes one finished run from the store.
func (m *Manager) DeleteRun(ctx context.Context, id string) error {
	if m.st == nil {
		return fmt.Errorf("%w: %s", gferrors.ErrRecordNotFound, id)
	}
	return m.st.Delete(ctx, id)
}
