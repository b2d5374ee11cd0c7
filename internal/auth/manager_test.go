package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"studyhall/internal/config"
	"studyhall/pkg/interfaces"
)

// tokenServer is a scripted auth backend with per-endpoint call counters
type tokenServer struct {
	server *httptest.Server

	loginCalls   int64
	refreshCalls int64

	mu             sync.Mutex
	refreshStatus  int
	refreshDelay   time.Duration
	refreshGate    chan struct{} // when set, refresh responses wait for the gate
	expiresSeconds int
	issueCounter   int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{refreshStatus: http.StatusOK, expiresSeconds: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ts.loginCalls, 1)

		var creds struct {
			Identifier string `json:"identifier"`
			Secret     string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Secret != "correct-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ts.writeTokens(w, true)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ts.refreshCalls, 1)

		ts.mu.Lock()
		status := ts.refreshStatus
		delay := ts.refreshDelay
		gate := ts.refreshGate
		ts.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		ts.writeTokens(w, false)
	})

	ts.server = httptest.NewServer(mux)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *tokenServer) writeTokens(w http.ResponseWriter, withUser bool) {
	ts.mu.Lock()
	ts.issueCounter++
	n := ts.issueCounter
	expires := ts.expiresSeconds
	ts.mu.Unlock()

	payload := map[string]interface{}{
		"accessToken":                 tokenName("access", n),
		"refreshToken":                tokenName("refresh", n),
		"accessTokenExpiresInSeconds": expires,
	}
	if withUser {
		payload["user"] = map[string]interface{}{
			"id":          "student-1",
			"displayName": "Sam Student",
			"roles":       []string{"student"},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func tokenName(prefix string, n int) string {
	return prefix + "-" + strconv.Itoa(n)
}

func testAuthConfig(baseURL string) *config.AuthConfig {
	return &config.AuthConfig{
		BaseURL:     baseURL,
		RenewalSkew: 90 * time.Second,
		HTTPTimeout: 5 * time.Second,
	}
}

func TestManager_LoginSuccess(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	before := time.Now()
	session, err := manager.Login(context.Background(), "sam", "correct-secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if session.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q", session.AccessToken)
	}
	if session.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q", session.RefreshToken)
	}
	if session.User.ID != "student-1" || session.User.DisplayName != "Sam Student" {
		t.Errorf("User = %+v", session.User)
	}

	wantExpiry := before.Add(3600 * time.Second)
	if session.AccessTokenExpiresAt.Before(wantExpiry.Add(-5*time.Second)) ||
		session.AccessTokenExpiresAt.After(wantExpiry.Add(10*time.Second)) {
		t.Errorf("Expiry %v not near %v", session.AccessTokenExpiresAt, wantExpiry)
	}

	if got := manager.Session(); got == nil || got.AccessToken != "access-1" {
		t.Error("Session() should return the logged-in session")
	}
}

func TestManager_LoginInvalidCredentials(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	_, err := manager.Login(context.Background(), "sam", "wrong-secret")
	if !errors.Is(err, interfaces.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if manager.Session() != nil {
		t.Error("Failed login must not establish a session")
	}
}

func TestManager_GetValidSessionNoSession(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	_, err := manager.GetValidSession(context.Background())
	if !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired, got %v", err)
	}
}

func TestManager_GetValidSessionFreshTokenNoRenewal(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	session, err := manager.GetValidSession(context.Background())
	if err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if session.AccessToken != "access-1" {
		t.Errorf("Fresh token should be returned untouched, got %q", session.AccessToken)
	}
	if got := atomic.LoadInt64(&ts.refreshCalls); got != 0 {
		t.Errorf("Refresh called %d times for a fresh token, want 0", got)
	}
}

func TestManager_SilentRenewalWithinSkew(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30 // inside the 90s renewal skew

	manager := NewManager(testAuthConfig(ts.server.URL))
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	ts.mu.Lock()
	ts.expiresSeconds = 3600
	ts.mu.Unlock()

	session, err := manager.GetValidSession(context.Background())
	if err != nil {
		t.Fatalf("GetValidSession failed: %v", err)
	}
	if session.AccessToken != "access-2" {
		t.Errorf("Expected renewed token access-2, got %q", session.AccessToken)
	}
	if got := atomic.LoadInt64(&ts.refreshCalls); got != 1 {
		t.Errorf("Refresh calls = %d, want 1", got)
	}

	// Renewal replaces tokens but keeps the authenticated identity
	if session.User.ID != "student-1" {
		t.Errorf("Renewed session lost user identity: %+v", session.User)
	}
}

func TestManager_SingleFlightRenewal(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30
	ts.refreshDelay = 100 * time.Millisecond

	manager := NewManager(testAuthConfig(ts.server.URL))
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	ts.mu.Lock()
	ts.expiresSeconds = 3600
	ts.mu.Unlock()

	const callers = 10
	tokens := make(chan string, callers)
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := manager.GetValidSession(context.Background())
			if err != nil {
				t.Errorf("Concurrent GetValidSession failed: %v", err)
				return
			}
			tokens <- session.AccessToken
		}()
	}
	wg.Wait()
	close(tokens)

	for token := range tokens {
		if token != "access-2" {
			t.Errorf("Caller observed token %q, want the single renewed access-2", token)
		}
	}

	if got := atomic.LoadInt64(&ts.refreshCalls); got != 1 {
		t.Errorf("Refresh calls = %d, want exactly 1 for %d concurrent callers", got, callers)
	}
}

func TestManager_RenewalRejectionEndsSession(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30
	ts.refreshStatus = http.StatusUnauthorized

	manager := NewManager(testAuthConfig(ts.server.URL))
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	ended := manager.SessionEnded()

	_, err := manager.GetValidSession(context.Background())
	if !errors.Is(err, interfaces.ErrRefreshFailed) {
		t.Fatalf("Expected ErrRefreshFailed, got %v", err)
	}

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Error("Rejected renewal must close the session-ended channel")
	}

	if manager.Session() != nil {
		t.Error("Session must be destroyed after rejected renewal")
	}

	_, err = manager.GetValidSession(context.Background())
	if !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("Post-rejection call: expected ErrSessionExpired, got %v", err)
	}
}

func TestManager_RenewalNetworkFailureNonFatal(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30

	cfg := testAuthConfig(ts.server.URL)
	cfg.HTTPTimeout = time.Second
	manager := NewManager(cfg)
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Make the backend unreachable for the renewal only
	cfg.BaseURL = "http://127.0.0.1:1"

	_, err := manager.GetValidSession(context.Background())
	if err == nil {
		t.Fatal("Renewal against an unreachable backend should fail")
	}
	if errors.Is(err, interfaces.ErrRefreshFailed) {
		t.Error("Network failure must not be treated as a fatal rejection")
	}

	select {
	case <-manager.SessionEnded():
		t.Error("Network failure must not end the session")
	case <-time.After(50 * time.Millisecond):
	}

	// Backend recovers; the next call starts a fresh renewal and succeeds
	cfg.BaseURL = ts.server.URL
	ts.mu.Lock()
	ts.expiresSeconds = 3600
	ts.mu.Unlock()

	session, err := manager.GetValidSession(context.Background())
	if err != nil {
		t.Fatalf("Renewal after recovery failed: %v", err)
	}
	if session.AccessToken != "access-2" {
		t.Errorf("Recovered renewal token = %q, want access-2", session.AccessToken)
	}
}

// waitForRefreshInFlight blocks until the server has received a refresh call
func waitForRefreshInFlight(t *testing.T, ts *tokenServer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&ts.refreshCalls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Renewal request never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_LogoutDuringRenewalNotResurrected(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30
	ts.refreshGate = make(chan struct{})

	manager := NewManager(testAuthConfig(ts.server.URL))
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := manager.GetValidSession(context.Background())
		errCh <- err
	}()
	waitForRefreshInFlight(t, ts)

	// Session destroyed while the renewal is still held at the server
	manager.Logout()
	close(ts.refreshGate)

	if err := <-errCh; !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("Waiter on an abandoned renewal: expected ErrSessionExpired, got %v", err)
	}

	// The late renewal result must not bring the session back
	if manager.Session() != nil {
		t.Error("Renewal completing after logout resurrected the destroyed session")
	}
	if _, err := manager.GetValidSession(context.Background()); !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("Post-logout call: expected ErrSessionExpired, got %v", err)
	}
}

func TestManager_ReloginDuringRenewalKeepsNewSession(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresSeconds = 30
	ts.refreshGate = make(chan struct{})

	manager := NewManager(testAuthConfig(ts.server.URL))
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("First login failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := manager.GetValidSession(context.Background())
		errCh <- err
	}()
	waitForRefreshInFlight(t, ts)

	// A fresh login lands while the old session's renewal is still in flight
	ts.mu.Lock()
	ts.expiresSeconds = 3600
	ts.mu.Unlock()
	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Second login failed: %v", err)
	}

	// The stale renewal (minted from the old refresh token) now completes
	close(ts.refreshGate)
	<-errCh

	session := manager.Session()
	if session == nil {
		t.Fatal("Session missing after re-login")
	}
	if session.AccessToken != "access-2" {
		t.Errorf("Session token = %q, want the re-login's access-2 (stale renewal must not clobber it)", session.AccessToken)
	}
}

func TestManager_ExpiryFallsBackToTokenClaim(t *testing.T) {
	claimExpiry := time.Now().Add(20 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "student-1",
		ExpiresAt: jwt.NewNumericDate(claimExpiry),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("Failed to mint test token: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accessToken":  token,
			"refreshToken": "refresh-1",
			"user":         map[string]interface{}{"id": "student-1", "displayName": "Sam", "roles": []string{"student"}},
		})
	}))
	defer server.Close()

	manager := NewManager(testAuthConfig(server.URL))
	session, err := manager.Login(context.Background(), "sam", "anything")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if !session.AccessTokenExpiresAt.Equal(claimExpiry) {
		t.Errorf("Expiry = %v, want the exp claim %v", session.AccessTokenExpiresAt, claimExpiry)
	}
}

func TestManager_LogoutIdempotent(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	ended := manager.SessionEnded()

	manager.Logout()
	manager.Logout() // must not panic

	select {
	case <-ended:
	default:
		t.Error("Logout must close the session-ended channel")
	}

	if _, err := manager.GetValidSession(context.Background()); !errors.Is(err, interfaces.ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired after logout, got %v", err)
	}
}

func TestManager_LoginAfterLogoutResetsEndedSignal(t *testing.T) {
	ts := newTokenServer(t)
	manager := NewManager(testAuthConfig(ts.server.URL))

	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("First login failed: %v", err)
	}
	manager.Logout()

	if _, err := manager.Login(context.Background(), "sam", "correct-secret"); err != nil {
		t.Fatalf("Second login failed: %v", err)
	}

	select {
	case <-manager.SessionEnded():
		t.Error("New login must reset the session-ended signal")
	default:
	}
}
