package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jmcleod/campusgate/storage"
)

// Durable slot names. They match the local-storage keys of the web client so
// persisted sessions stay interchangeable.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyTenantID     = "tenantId"
	KeyAggregate    = "auth-storage"
)

// persistVersion is the schema version written into the aggregate slot.
const persistVersion = 0

// projection is the part of a Session that survives a reload.
// Tokens are never part of it; they live in their own slots.
type projection struct {
	User            *User   `json:"user"`
	Tenant          *Tenant `json:"tenant"`
	IsAuthenticated bool    `json:"isAuthenticated"`
}

type persistedState struct {
	State   projection `json:"state"`
	Version int        `json:"version"`
}

// Store owns one browser's Session. All mutation goes through SetAuth,
// ClearAuth and UpdateUser, plus the conditional ReplaceTokens and
// ClearAuthIf used by token refresh; readers take a Snapshot.
//
// Storage failures never surface to callers. They are logged and the
// in-memory session stays authoritative.
type Store struct {
	mu        sync.RWMutex
	repo      storage.Repository
	namespace string
	logger    zerolog.Logger
	session   Session
	tenantID  string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for storage failures and rehydration warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates the Store for namespace and rehydrates it from repo.
func NewStore(repo storage.Repository, namespace string, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		namespace: namespace,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Str("namespace", namespace).Logger()
	s.rehydrate()
	return s
}

func (s *Store) rehydrate() {
	var state persistedState
	data, err := s.repo.Get(s.namespace, KeyAggregate)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("reading persisted session")
		return
	}
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable persisted session")
		return
	}

	p := state.State
	if p.IsAuthenticated && p.User == nil {
		s.logger.Warn().Msg("persisted session is authenticated without a user; starting anonymous")
		return
	}

	if !p.IsAuthenticated {
		return
	}

	s.session = Session{
		User:            p.User,
		Tenant:          p.Tenant,
		AccessToken:     s.readSlot(KeyAccessToken),
		RefreshToken:    s.readSlot(KeyRefreshToken),
		IsAuthenticated: true,
	}
	s.tenantID = s.readSlot(KeyTenantID)
}

func (s *Store) readSlot(key string) string {
	v, err := s.repo.Get(s.namespace, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("reading session slot")
		}
		return ""
	}
	return string(v)
}

// SetAuth replaces the whole session with a freshly authenticated identity.
func (s *Store) SetAuth(user User, tenant *Tenant, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{
		User:            &user,
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		IsAuthenticated: true,
	}
	s.tenantID = ""
	if tenant != nil {
		t := *tenant
		s.session.Tenant = &t
		s.tenantID = t.ID
	}

	aggregate, err := s.encodeLocked()
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding session")
		return
	}
	err = s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Put(KeyAccessToken, []byte(accessToken)); err != nil {
			return err
		}
		if err := tx.Put(KeyRefreshToken, []byte(refreshToken)); err != nil {
			return err
		}
		if s.tenantID != "" {
			if err := tx.Put(KeyTenantID, []byte(s.tenantID)); err != nil {
				return err
			}
		} else if err := tx.Delete(KeyTenantID); err != nil {
			return err
		}
		return tx.Put(KeyAggregate, aggregate)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("persisting session")
	}
}

// ClearAuth resets the session to its empty state and removes the persisted
// credentials. Calling it on an empty session is harmless.
func (s *Store) ClearAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.session = Session{}
	s.tenantID = ""

	aggregate, err := s.encodeLocked()
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding session")
		return
	}
	err = s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyTenantID} {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Put(KeyAggregate, aggregate)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("clearing persisted session")
	}
}

// ReplaceTokens swaps in a rotated token pair, leaving user and tenant as they
// are. It only writes while the session is authenticated and still carries
// expectedAccess, and reports whether it did.
func (s *Store) ReplaceTokens(expectedAccess, accessToken, refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsAuthenticated || s.session.AccessToken != expectedAccess {
		return false
	}
	s.session.AccessToken = accessToken
	s.session.RefreshToken = refreshToken

	err := s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Put(KeyAccessToken, []byte(accessToken)); err != nil {
			return err
		}
		return tx.Put(KeyRefreshToken, []byte(refreshToken))
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("persisting rotated tokens")
	}
	return true
}

// ClearAuthIf clears the session only if it still carries accessToken. It
// reports whether it cleared.
func (s *Store) ClearAuthIf(accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsAuthenticated || s.session.AccessToken != accessToken {
		return false
	}
	s.clearLocked()
	return true
}

// UpdateUser merges patch into the current user. It does nothing when no
// user is signed in.
func (s *Store) UpdateUser(patch UserPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.User == nil {
		return
	}
	patch.apply(s.session.User)

	aggregate, err := s.encodeLocked()
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding session")
		return
	}
	if err := s.repo.Put(s.namespace, KeyAggregate, aggregate); err != nil {
		s.logger.Error().Err(err).Msg("persisting user update")
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Tokens returns the current access and refresh tokens.
func (s *Store) Tokens() (accessToken, refreshToken string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken, s.session.RefreshToken
}

// TenantID returns the tenant the backend should scope requests to.
func (s *Store) TenantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantID
}

// Namespace returns the storage namespace this store persists into.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) encodeLocked() ([]byte, error) {
	return json.Marshal(persistedState{
		State: projection{
			User:            s.session.User,
			Tenant:          s.session.Tenant,
			IsAuthenticated: s.session.IsAuthenticated,
		},
		Version: persistVersion,
	})
}
