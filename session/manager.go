package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmcleod/campusgate/storage"
)

// DefaultIdleTimeout is how long an unused Store stays in memory.
const DefaultIdleTimeout = 30 * time.Minute

// Manager hands out one Store per browser namespace. Stores are created on
// first use, rehydrated from the repository, and dropped from memory after
// sitting idle. Dropping a store never touches its persisted slots.
type Manager struct {
	mu          sync.Mutex
	repo        storage.Repository
	logger      zerolog.Logger
	idleTimeout time.Duration
	now         func() time.Time
	stores      map[string]*managedStore
}

type managedStore struct {
	store    *Store
	lastUsed time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger passed to every Store the manager creates.
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// NewManager returns a Manager persisting into repo.
func NewManager(repo storage.Repository, opts ...ManagerOption) *Manager {
	m := &Manager{
		repo:        repo,
		logger:      zerolog.Nop(),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		stores:      make(map[string]*managedStore),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the Store for namespace, creating and rehydrating it if needed.
func (m *Manager) Get(namespace string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.stores[namespace]; ok {
		ms.lastUsed = m.now()
		return ms.store
	}
	s := NewStore(m.repo, namespace, WithLogger(m.logger))
	m.stores[namespace] = &managedStore{store: s, lastUsed: m.now()}
	return s
}

// Len returns the number of stores currently held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Sweep forgets stores idle longer than the idle timeout and reports how many
// were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTimeout)
	dropped := 0
	for ns, ms := range m.stores {
		if ms.lastUsed.Before(cutoff) {
			delete(m.stores, ns)
			dropped++
		}
	}
	return dropped
}

// Run sweeps idle stores every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("dropped", n).Msg("swept idle sessions")
			}
		}
	}
}
