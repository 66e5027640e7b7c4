package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
	"github.com/jrsteele09/go-attendance-auth/session"
	"github.com/jrsteele09/go-attendance-auth/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientTestSecret = "client-test-secret"

// fakeGateway is a minimal stand-in for the auth service: it mints real
// signed tokens so the manager's decode paths see well-formed JWTs
type fakeGateway struct {
	codec *token.Codec

	refreshCalls  atomic.Int64
	logoutCalls   atomic.Int64
	refreshDelay  time.Duration
	refreshDenied atomic.Bool

	mu           sync.Mutex
	latestAccess string
}

func newFakeGateway() (*fakeGateway, *httptest.Server) {
	g := &fakeGateway{codec: token.NewCodec(clientTestSecret)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", g.refresh)
	mux.HandleFunc("GET /api/auth/session", g.session)
	mux.HandleFunc("POST /api/auth/logout", g.logout)

	return g, httptest.NewServer(mux)
}

func (g *fakeGateway) mintPair(accessTTL time.Duration) (accessToken, refreshToken string) {
	claims := token.Claims{Name: "Jane Teacher", Email: "jane.teacher@example.com"}
	claims.Subject = "user-42"

	accessToken, err := g.codec.Sign(claims, token.KindAccess, accessTTL)
	if err != nil {
		panic(err)
	}
	refreshToken, err = g.codec.Sign(claims.RefreshClaims(), token.KindRefresh, 7*24*time.Hour)
	if err != nil {
		panic(err)
	}

	g.mu.Lock()
	g.latestAccess = accessToken
	g.mu.Unlock()
	return accessToken, refreshToken
}

func (g *fakeGateway) currentAccess() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latestAccess
}

func (g *fakeGateway) refresh(w http.ResponseWriter, r *http.Request) {
	g.refreshCalls.Add(1)
	if g.refreshDelay > 0 {
		time.Sleep(g.refreshDelay)
	}

	if g.refreshDenied.Load() {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
		return
	}

	accessToken, refreshToken := g.mintPair(time.Hour)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (g *fakeGateway) session(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sub":   "user-42",
		"name":  "Jane Teacher",
		"email": "jane.teacher@example.com",
	})
}

func (g *fakeGateway) logout(w http.ResponseWriter, r *http.Request) {
	g.logoutCalls.Add(1)
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func newNativeStore(t *testing.T) *session.NativeStore {
	t.Helper()
	store, err := session.NewNativeStore(t.TempDir(), []byte("device-secret"))
	require.NoError(t, err)
	return store
}

func TestRestoreAdoptsValidStoredToken(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	store := newNativeStore(t)
	accessToken, refreshToken := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())

	assert.Equal(t, session.Authenticated, m.State())
	assert.Equal(t, accessToken, m.Current().AccessToken)
	require.NotNil(t, m.User())
	assert.Equal(t, "user-42", m.User().Subject)

	// A still-valid token is adopted directly, never exchanged
	assert.Equal(t, int64(0), g.refreshCalls.Load())
}

func TestRestoreWithNoStoredTokens(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(newNativeStore(t)))
	m.Restore(context.Background())

	assert.Equal(t, session.Unauthenticated, m.State())
	assert.NoError(t, m.Err())
	assert.Equal(t, int64(0), g.refreshCalls.Load())
}

func TestRestoreExpiredTokenTriggersRefresh(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	store := newNativeStore(t)
	expiredAccess, refreshToken := g.mintPair(-time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, expiredAccess))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())

	assert.Equal(t, session.Authenticated, m.State())
	assert.Equal(t, int64(1), g.refreshCalls.Load())
	assert.NotEqual(t, expiredAccess, m.Current().AccessToken)

	// The rotated pair replaces what was stored
	storedAccess, err := store.Retrieve(context.Background(), session.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, m.Current().AccessToken, storedAccess)
}

func TestRefreshSingleFlight(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	store := newNativeStore(t)
	accessToken, refreshToken := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())
	require.Equal(t, int64(0), g.refreshCalls.Load())

	g.refreshDelay = 150 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Refresh(context.Background())
		assert.NoError(t, err)
	}()

	time.Sleep(30 * time.Millisecond) // let the first refresh reach the gateway

	newToken, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, newToken) // concurrent call is a no-op

	wg.Wait()
	assert.Equal(t, int64(1), g.refreshCalls.Load())
}

func TestRefreshRejectionForcesSignOut(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	store := newNativeStore(t)
	accessToken, refreshToken := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())
	require.Equal(t, session.Authenticated, m.State())

	g.refreshDenied.Store(true)

	_, err := m.Refresh(context.Background())
	require.ErrorIs(t, err, errs.ErrUnauthenticated)

	assert.Equal(t, session.Unauthenticated, m.State())
	assert.Nil(t, m.User())

	stored, err := store.Retrieve(context.Background(), session.KeyAccessToken)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSignOutClearsSessionWhenLogoutFails(t *testing.T) {
	_, srv := newFakeGateway()

	m := session.New(srv.URL, session.PlatformWeb)
	m.Restore(context.Background())
	require.Equal(t, session.Authenticated, m.State())

	srv.Close() // logout call will now fail at the transport level

	m.SignOut(context.Background())

	assert.Equal(t, session.Unauthenticated, m.State())
	assert.Equal(t, session.Session{}, m.Current())
}

func TestDoRetriesOnceAfter401(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	var apiCalls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer "+g.currentAccess(), r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	store := newNativeStore(t)
	accessToken, refreshToken := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())

	req, err := http.NewRequest(http.MethodGet, api.URL+"/records", nil)
	require.NoError(t, err)

	resp, err := m.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), apiCalls.Load())
	assert.Equal(t, int64(1), g.refreshCalls.Load())
}

func TestDoReturnsOriginal401WhenRefreshFails(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()
	g.refreshDenied.Store(true)

	var apiCalls atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	store := newNativeStore(t)
	accessToken, refreshToken := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))
	require.NoError(t, store.Persist(context.Background(), session.KeyRefreshToken, refreshToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))
	m.Restore(context.Background())

	req, err := http.NewRequest(http.MethodGet, api.URL+"/records", nil)
	require.NoError(t, err)

	resp, err := m.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), apiCalls.Load()) // no retry without a new token
	assert.Equal(t, int64(1), g.refreshCalls.Load())
	assert.Equal(t, session.Unauthenticated, m.State())
}

func TestSubscribeObservesTransitions(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	store := newNativeStore(t)
	accessToken, _ := g.mintPair(time.Hour)
	require.NoError(t, store.Persist(context.Background(), session.KeyAccessToken, accessToken))

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(store))

	var mu sync.Mutex
	var states []session.State
	m.Subscribe(func(s session.State, _ session.Session) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	m.Restore(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.State{session.Restoring, session.Authenticated}, states)
}

func TestCompleteSignInRejectsStateMismatch(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	m := session.New(srv.URL, session.PlatformNative, session.WithStore(newNativeStore(t)))

	flow, authorizeURL := m.BeginSignIn("attendanceapp://", "identity")
	assert.Contains(t, authorizeURL, "client_id=google")
	assert.Contains(t, authorizeURL, "code_challenge_method=S256")

	err := m.CompleteSignIn(context.Background(), flow, "some-code", "tampered-state")
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.ErrorIs(t, m.Err(), errs.ErrInvalidState)
	assert.Equal(t, int64(0), g.refreshCalls.Load())
}

func TestCompleteSignInNative(t *testing.T) {
	g, srv := newFakeGateway()
	defer srv.Close()

	// Extend the fake with the token endpoint for this test
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "good-code", r.FormValue("code"))
		assert.NotEmpty(t, r.FormValue("code_verifier"))

		accessToken, refreshToken := g.mintPair(time.Hour)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		})
	})
	tokenSrv := httptest.NewServer(mux)
	defer tokenSrv.Close()

	store := newNativeStore(t)
	m := session.New(tokenSrv.URL, session.PlatformNative, session.WithStore(store))

	flow, _ := m.BeginSignIn("attendanceapp://", "identity")
	require.NoError(t, m.CompleteSignIn(context.Background(), flow, "good-code", flow.State))

	assert.Equal(t, session.Authenticated, m.State())
	require.NotNil(t, m.User())
	assert.Equal(t, "user-42", m.User().Subject)

	stored, err := store.Retrieve(context.Background(), session.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, m.Current().AccessToken, stored)
}
