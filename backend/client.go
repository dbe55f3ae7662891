// Package backend is the REST client for the LMS API. It runs the
// authenticated request lifecycle for one browser session: bearer and tenant
// headers, proactive and on-401 token refresh, and a short-lived read cache.
// Every identity change goes through the session store's mutators.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmcleod/campusgate/cache"
	"github.com/jmcleod/campusgate/session"
)

const (
	// DefaultRefreshSkew is how close to expiry an access token is refreshed
	// before it is sent.
	DefaultRefreshSkew = 30 * time.Second
	// DefaultTimeout bounds a single backend round trip.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 4 << 20
	refreshStripes   = 64
)

// SessionStore is the part of session.Store the client needs.
type SessionStore interface {
	Snapshot() session.Session
	TenantID() string
	Namespace() string
	SetAuth(user session.User, tenant *session.Tenant, accessToken, refreshToken string)
	ClearAuth()
	UpdateUser(patch session.UserPatch)
	ReplaceTokens(expectedAccess, accessToken, refreshToken string) bool
	ClearAuthIf(accessToken string) bool
}

var _ SessionStore = (*session.Store)(nil)

// Client talks to the LMS backend on behalf of browser sessions.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	cache       cache.Cache
	cacheTTL    time.Duration
	refreshSkew time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	// refreshLocks serialises refreshes per namespace so concurrent 401s
	// from one browser spend the refresh token once.
	refreshLocks [refreshStripes]sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCache enables the read cache for Get.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

// WithRefreshSkew overrides DefaultRefreshSkew.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = d
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New returns a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		cacheTTL:    cache.DefaultTTL,
		refreshSkew: DefaultRefreshSkew,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "backend").Logger()
	return c
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Tenant   string `json:"tenant,omitempty"`
}

type loginResponse struct {
	User         *session.User   `json:"user"`
	Tenant       *session.Tenant `json:"tenant"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for an identity bundle and stores it.
func (c *Client) Login(ctx context.Context, store SessionStore, creds Credentials) (session.Session, error) {
	status, data, err := c.do(ctx, http.MethodPost, "/auth/login", creds, "", creds.Tenant)
	if err != nil {
		return session.Session{}, err
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return session.Session{}, ErrInvalidCredentials
	case !success(status):
		return session.Session{}, &StatusError{Method: http.MethodPost, Path: "/auth/login", Code: status, Body: data}
	}

	var resp loginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return session.Session{}, fmt.Errorf("decoding login response: %w", err)
	}
	if resp.User == nil || resp.AccessToken == "" {
		return session.Session{}, fmt.Errorf("login response missing user or access token")
	}

	store.SetAuth(*resp.User, resp.Tenant, resp.AccessToken, resp.RefreshToken)
	return store.Snapshot(), nil
}

// Refresh trades the stored refresh token for a new token pair, keeping the
// current user and tenant. A rejected refresh token clears the session and
// returns ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context, store SessionStore) error {
	mu := c.refreshLock(store.Namespace())
	mu.Lock()
	defer mu.Unlock()
	return c.refreshLocked(ctx, store)
}

// refreshIfStale refreshes unless another request already replaced stale
// while this one waited for the lock.
func (c *Client) refreshIfStale(ctx context.Context, store SessionStore, stale string) error {
	mu := c.refreshLock(store.Namespace())
	mu.Lock()
	defer mu.Unlock()

	snap := store.Snapshot()
	if snap.IsAuthenticated && snap.AccessToken != stale {
		return nil
	}
	return c.refreshLocked(ctx, store)
}

// refreshLocked rotates the token pair the session holds on entry. Logout,
// Login and UpdateProfile do not take the refresh lock, so every write back
// is conditional on the session still carrying the access token this refresh
// started from.
func (c *Client) refreshLocked(ctx context.Context, store SessionStore) error {
	snap := store.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return ErrNotAuthenticated
	}
	if snap.RefreshToken == "" {
		store.ClearAuthIf(snap.AccessToken)
		return ErrSessionExpired
	}

	status, data, err := c.do(ctx, http.MethodPost, "/auth/refresh",
		refreshRequest{RefreshToken: snap.RefreshToken}, "", store.TenantID())
	if err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.logger.Info().Str("namespace", store.Namespace()).Int("status", status).Msg("refresh token rejected")
		if !store.ClearAuthIf(snap.AccessToken) {
			return c.superseded(store)
		}
		return ErrSessionExpired
	case !success(status):
		return &StatusError{Method: http.MethodPost, Path: "/auth/refresh", Code: status, Body: data}
	}

	var pair tokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}
	if pair.AccessToken == "" {
		return fmt.Errorf("refresh response missing access token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = snap.RefreshToken
	}
	if !store.ReplaceTokens(snap.AccessToken, pair.AccessToken, pair.RefreshToken) {
		return c.superseded(store)
	}
	return nil
}

// superseded reports the outcome of a refresh whose session changed while it
// was in flight: a signed-out session stays signed out, a new sign-in is kept.
func (c *Client) superseded(store SessionStore) error {
	c.logger.Debug().Str("namespace", store.Namespace()).Msg("session changed during refresh; discarding result")
	if store.Snapshot().IsAuthenticated {
		return nil
	}
	return ErrNotAuthenticated
}

// Logout tells the backend to revoke the session, then clears it locally
// whatever the backend answered.
func (c *Client) Logout(ctx context.Context, store SessionStore) {
	snap := store.Snapshot()
	if snap.IsAuthenticated {
		status, _, err := c.do(ctx, http.MethodPost, "/auth/logout",
			refreshRequest{RefreshToken: snap.RefreshToken}, snap.AccessToken, store.TenantID())
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("backend logout failed")
		case !success(status):
			c.logger.Warn().Int("status", status).Msg("backend logout refused")
		}
		c.evictUser(ctx, store.TenantID(), snap.User)
	}
	store.ClearAuth()
}

// UpdateProfile sends patch to the backend and merges the result into the
// session. When the backend echoes the user, its copy wins.
func (c *Client) UpdateProfile(ctx context.Context, store SessionStore, patch session.UserPatch) (session.Session, error) {
	data, err := c.authed(ctx, store, http.MethodPatch, "/users/me", patch)
	if err != nil {
		return session.Session{}, err
	}

	var echo session.User
	if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &echo) == nil && echo.ID != "" {
		store.UpdateUser(session.PatchFrom(echo))
	} else {
		store.UpdateUser(patch)
	}
	snap := store.Snapshot()
	c.evictUser(ctx, store.TenantID(), snap.User)
	return snap, nil
}

// Get performs an authenticated GET and returns the raw response body.
// Successful bodies are cached per tenant, user and path.
func (c *Client) Get(ctx context.Context, store SessionStore, path string) ([]byte, error) {
	snap := store.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return nil, ErrNotAuthenticated
	}

	key := cacheKey(store.TenantID(), snap.User.ID, path)
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("read cache unavailable")
		case ok:
			return data, nil
		}
	}

	data, err := c.authed(ctx, store, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn().Err(err).Msg("caching backend response")
		}
	}
	return data, nil
}

// authed sends a bearer-authenticated request. An access token about to
// expire is refreshed first; a 401 triggers one refresh and one retry.
func (c *Client) authed(ctx context.Context, store SessionStore, method, path string, body any) ([]byte, error) {
	snap := store.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return nil, ErrNotAuthenticated
	}
	access := snap.AccessToken

	if c.expiringSoon(access) {
		if err := c.refreshIfStale(ctx, store, access); err != nil {
			return nil, err
		}
		access = store.Snapshot().AccessToken
	}

	status, data, err := c.do(ctx, method, path, body, access, store.TenantID())
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshIfStale(ctx, store, access); err != nil {
			return nil, err
		}
		access = store.Snapshot().AccessToken
		status, data, err = c.do(ctx, method, path, body, access, store.TenantID())
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			store.ClearAuthIf(access)
			return nil, ErrSessionExpired
		}
	}
	if !success(status) {
		return nil, &StatusError{Method: method, Path: path, Code: status, Body: data}
	}
	return data, nil
}

func (c *Client) expiringSoon(token string) bool {
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return !c.now().Add(c.refreshSkew).Before(exp)
}

func (c *Client) do(ctx context.Context, method, path string, body any, accessToken, tenantID string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading backend %s %s: %w", method, path, err)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("backend call")
	return resp.StatusCode, data, nil
}

func (c *Client) refreshLock(namespace string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	return &c.refreshLocks[h.Sum32()%refreshStripes]
}

// evictUser drops every cached response of user so nothing read under an
// old profile or a closed session is served again.
func (c *Client) evictUser(ctx context.Context, tenantID string, user *session.User) {
	if c.cache == nil || user == nil {
		return
	}
	if err := c.cache.DeletePrefix(ctx, cacheKey(tenantID, user.ID, "")); err != nil {
		c.logger.Warn().Err(err).Msg("evicting cached responses")
	}
}

func cacheKey(tenantID, userID, path string) string {
	return tenantID + ":" + userID + ":" + path
}

func success(status int) bool {
	return status >= 200 && status < 300
}
