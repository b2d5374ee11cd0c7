package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"studyhall/internal/config"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// NowFunc returns the current time; replaceable in tests
var NowFunc = time.Now

// renewal tracks one in-flight refresh call shared by all waiting callers
// ARCHITECTURAL DISCOVERY: Exactly one renewal request in flight per session -
// concurrent callers await the same pending result instead of issuing
// duplicate refresh calls that would race and invalidate the refresh token
type renewal struct {
	done    chan struct{}
	session *types.Session
	err     error
}

// Manager owns the access/refresh token pair and its expiry clock
type Manager struct {
	cfg    *config.AuthConfig
	client *http.Client

	mu       sync.Mutex
	session  *types.Session
	inflight *renewal
	ended    chan struct{}
	endOnce  *sync.Once
}

// NewManager creates a token lifecycle manager
func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		ended:   make(chan struct{}),
		endOnce: &sync.Once{},
	}
}

// Wire shapes for the credential exchange and renewal endpoints

type credentialRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type renewalRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userPayload struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Roles       []string `json:"roles"`
}

type tokenResponse struct {
	AccessToken                 string       `json:"accessToken"`
	RefreshToken                string       `json:"refreshToken"`
	AccessTokenExpiresInSeconds int          `json:"accessTokenExpiresInSeconds"`
	User                        *userPayload `json:"user,omitempty"`
}

// Login exchanges credentials for a fresh session
// FUNCTIONAL DISCOVERY: A new login resurrects an ended manager - the
// session-ended signal channel is replaced so a previous teardown cannot
// leak into the new session's supervisor
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*types.Session, error) {
	body, resp, err := m.post(ctx, "/api/auth/login", credentialRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("credential exchange: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, interfaces.ErrInvalidCredentials
	}

	session, err := m.buildSession(body)
	if err != nil {
		return nil, err
	}
	if !types.IsValidUserID(session.User.ID) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, types.ErrInvalidUserID)
	}

	m.mu.Lock()
	m.session = session
	m.inflight = nil
	m.ended = make(chan struct{})
	m.endOnce = &sync.Once{}
	m.mu.Unlock()

	log.Printf("Authenticated user %s (%s)", session.User.ID, session.User.DisplayName)
	return session, nil
}

// GetValidSession returns the current session if its access token has more
// than the renewal skew of life left; otherwise it triggers (or joins) a
// silent renewal and suspends the caller until that renewal settles
func (m *Manager) GetValidSession(ctx context.Context) (*types.Session, error) {
	m.mu.Lock()

	if m.session == nil {
		m.mu.Unlock()
		return nil, interfaces.ErrSessionExpired
	}

	if !m.session.ExpiresWithin(NowFunc(), m.cfg.RenewalSkew) {
		session := m.session
		m.mu.Unlock()
		return session, nil
	}

	// Renewal needed; join the in-flight one or start it
	if m.inflight == nil {
		r := &renewal{done: make(chan struct{})}
		m.inflight = r
		go m.renew(r, m.session.RefreshToken)
	}
	r := m.inflight
	m.mu.Unlock()

	select {
	case <-r.done:
		return r.session, r.err
	case <-ctx.Done():
		// The renewal itself keeps running; only this caller gives up
		return nil, ctx.Err()
	}
}

// renew performs the single refresh call and settles all waiting callers
// with the same outcome
func (m *Manager) renew(r *renewal, refreshToken string) {
	defer close(r.done)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HTTPTimeout)
	defer cancel()

	body, resp, err := m.post(ctx, "/api/auth/refresh", renewalRequest{RefreshToken: refreshToken})
	if err != nil {
		// FUNCTIONAL DISCOVERY: Network failure is not fatal - callers retry
		// through their normal HTTP retry policy; the session stays intact
		// and a later call starts a fresh renewal
		r.err = fmt.Errorf("renewal request: %w", err)
		m.clearInflight(r)
		return
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Explicit rejection of the refresh token is fatal: no retry, the
		// session ends and every waiter observes RefreshFailed
		log.Printf("Token renewal rejected (status %d), ending session", resp.StatusCode)
		r.err = interfaces.ErrRefreshFailed
		m.endSession(r)
		return
	}

	if resp.StatusCode != http.StatusOK {
		r.err = fmt.Errorf("renewal request: unexpected status %d", resp.StatusCode)
		m.clearInflight(r)
		return
	}

	fresh, err := m.buildSession(body)
	if err != nil {
		r.err = err
		m.clearInflight(r)
		return
	}

	m.mu.Lock()
	if m.inflight != r {
		// FUNCTIONAL DISCOVERY: Logout or a fresh Login settled the session
		// while this renewal was in flight - a stale result must neither
		// resurrect a destroyed session nor clobber the new one with tokens
		// minted from the old refresh token
		m.mu.Unlock()
		r.err = interfaces.ErrSessionExpired
		return
	}
	if m.session != nil {
		// ARCHITECTURAL DISCOVERY: Replacement keeps the same identity with
		// new tokens, swapped in atomically - no caller ever observes a
		// half-updated session
		fresh.User = m.session.User
	}
	m.session = fresh
	m.inflight = nil
	m.mu.Unlock()

	r.session = fresh
	log.Printf("Access token renewed, expires %s", fresh.AccessTokenExpiresAt.Format(time.RFC3339))
}

// Logout destroys the session and signals session end
// FUNCTIONAL DISCOVERY: Idempotent - logging out twice is a no-op
func (m *Manager) Logout() {
	m.mu.Lock()
	m.session = nil
	m.inflight = nil
	once := m.endOnce
	ended := m.ended
	m.mu.Unlock()

	once.Do(func() { close(ended) })
}

// SessionEnded returns a channel closed when the session reaches its
// terminal Expired state
func (m *Manager) SessionEnded() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// Session returns the current session without triggering renewal, or nil
func (m *Manager) Session() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// endSession moves the manager to the Expired terminal state
func (m *Manager) endSession(r *renewal) {
	m.mu.Lock()
	m.session = nil
	if m.inflight == r {
		m.inflight = nil
	}
	once := m.endOnce
	ended := m.ended
	m.mu.Unlock()

	once.Do(func() { close(ended) })
}

// clearInflight releases the single-flight slot after a non-fatal failure
func (m *Manager) clearInflight(r *renewal) {
	m.mu.Lock()
	if m.inflight == r {
		m.inflight = nil
	}
	m.mu.Unlock()
}

// post issues one JSON POST and returns the response body and metadata
func (m *Manager) post(ctx context.Context, path string, payload interface{}) ([]byte, *http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, err
	}

	return body, resp, nil
}

// buildSession converts a token endpoint response into a Session with a
// resolved expiry instant
func (m *Manager) buildSession(body []byte) (*types.Session, error) {
	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if payload.AccessToken == "" || payload.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing tokens", ErrMalformedResponse)
	}

	expiresAt, err := resolveExpiry(payload.AccessToken, payload.AccessTokenExpiresInSeconds)
	if err != nil {
		return nil, err
	}

	session := &types.Session{
		AccessToken:          payload.AccessToken,
		RefreshToken:         payload.RefreshToken,
		AccessTokenExpiresAt: expiresAt,
	}
	if payload.User != nil {
		session.User = types.User{
			ID:          payload.User.ID,
			DisplayName: payload.User.DisplayName,
			Roles:       payload.User.Roles,
		}
	}

	return session, nil
}

// resolveExpiry prefers the endpoint's explicit lifetime and falls back to
// the access token's exp claim
// TECHNICAL DISCOVERY: The claim is parsed unverified - signature validation
// is the server's job; the client only needs the expiry instant for its
// renewal clock
func resolveExpiry(accessToken string, expiresInSeconds int) (time.Time, error) {
	if expiresInSeconds > 0 {
		return NowFunc().Add(time.Duration(expiresInSeconds) * time.Second), nil
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoExpiry, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}

	return claims.ExpiresAt.Time, nil
}
