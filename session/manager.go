package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
	"github.com/jrsteele09/go-attendance-auth/token"
	"github.com/rs/zerolog/log"
)

// Manager owns the single client-side Session. It restores sessions at
// startup, refreshes tokens, signs the user in and out, and wraps requests
// with credentials. Callers read the session through accessors and observe
// changes through Subscribe; they never mutate it directly.
//
// Restore must complete (success or settle-to-unauthenticated) before
// dependent flows invoke Do; callers gate on the Restoring state.
type Manager struct {
	baseURL  string
	platform Platform
	client   *http.Client
	store    TokenStore
	attacher CredentialAttacher

	mu          sync.Mutex
	state       State
	session     Session
	lastErr     error
	refreshing  bool
	subscribers []func(State, Session)
}

// Option configures a Manager
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client (web clients need a cookie jar;
// the default provides one)
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

// WithStore overrides the token store selected by platform
func WithStore(store TokenStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithAttacher overrides the credential attacher selected by platform
func WithAttacher(attacher CredentialAttacher) Option {
	return func(m *Manager) { m.attacher = attacher }
}

// New creates a Manager for the given gateway base URL and platform
func New(baseURL string, platform Platform, options ...Option) *Manager {
	m := &Manager{
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: platform,
		state:    Uninitialized,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.client == nil {
		m.client = &http.Client{}
		if platform == PlatformWeb {
			jar, _ := cookiejar.New(nil)
			m.client.Jar = jar
		}
	}
	if m.store == nil {
		m.store = ImplicitStore{}
	}
	if m.attacher == nil {
		if platform == PlatformWeb {
			m.attacher = CookieAttacher{}
		} else {
			m.attacher = BearerAttacher{}
		}
	}

	return m
}

// Subscribe registers a callback invoked on every state or session change
func (m *Manager) Subscribe(fn func(State, Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// State returns the manager's lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the session
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// User returns the authenticated user's claims, or nil
func (m *Manager) User() *token.Claims {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.User
}

// Err returns the last sign-in error, if any
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Restore re-establishes a session from persisted tokens at startup. A
// still-valid stored access token is adopted directly without a network
// call; only an expired or missing one triggers a refresh. With no stored
// tokens at all the manager settles into Unauthenticated without error.
func (m *Manager) Restore(ctx context.Context) {
	m.transition(Restoring, func(s *Session) {})

	if m.platform == PlatformWeb {
		m.restoreWeb(ctx)
	} else {
		m.restoreNative(ctx)
	}

	if m.State() != Authenticated {
		m.transition(Unauthenticated, func(s *Session) {})
	}
}

func (m *Manager) restoreWeb(ctx context.Context) {
	claims, err := m.fetchSession(ctx)
	if err == nil {
		m.adopt(Session{User: claims})
		return
	}

	log.Debug().Err(err).Msg("no active web session, attempting silent refresh")
	if _, err := m.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("silent refresh on startup failed")
	}
}

func (m *Manager) restoreNative(ctx context.Context) {
	storedAccess, err := m.store.Retrieve(ctx, KeyAccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored access token")
	}
	storedRefresh, err := m.store.Retrieve(ctx, KeyRefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored refresh token")
	}

	if storedAccess != "" {
		claims, err := token.Decode(storedAccess)
		if err == nil && claims.ExpiresAt != nil && claims.ExpiresAt.After(token.NowTimeFunc()) {
			m.adopt(Session{User: claims, AccessToken: storedAccess, RefreshToken: storedRefresh})
			return
		}
	}

	if storedRefresh == "" {
		return
	}

	m.mu.Lock()
	m.session.RefreshToken = storedRefresh
	m.mu.Unlock()

	if _, err := m.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("refresh with stored token failed")
	}
}

// BeginSignIn starts a browser-based PKCE flow, returning the flow state and
// the gateway authorize URL to open
func (m *Manager) BeginSignIn(redirectURI, scope string) (*SignInFlow, string) {
	flow := NewSignInFlow()
	return flow, flow.AuthorizeURL(m.baseURL, redirectURI, scope)
}

// CompleteSignIn validates the returned state, exchanges the code at the
// gateway's token endpoint, and adopts the resulting tokens. A failure
// surfaces through Err without clearing any already-authenticated session.
func (m *Manager) CompleteSignIn(ctx context.Context, flow *SignInFlow, code, returnedState string) error {
	if err := flow.ValidateState(returnedState); err != nil {
		m.setErr(err)
		return err
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("code_verifier", flow.CodeVerifier)
	if m.platform == PlatformWeb {
		form.Set("platform", "web")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		m.setErr(err)
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		m.setErr(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := errs.Wrapf(errs.ErrUpstream, "token exchange returned %d", resp.StatusCode)
		m.setErr(err)
		return err
	}

	if m.platform == PlatformWeb {
		// Tokens arrived as cookies; adopt the session through a check
		claims, err := m.fetchSession(ctx)
		if err != nil {
			m.setErr(err)
			return err
		}
		m.adopt(Session{User: claims})
		return nil
	}

	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		m.setErr(err)
		return err
	}

	return m.adoptNativeTokens(ctx, tokens.AccessToken, tokens.RefreshToken)
}

// Refresh obtains a fresh token pair using the current refresh token. A
// concurrent call while one is outstanding is a no-op returning immediately.
// A 401 from the gateway forces sign-out. Returns the new access token on
// native; web tokens arrive as cookies so nothing is returned.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.refreshing {
		m.mu.Unlock()
		log.Debug().Msg("token refresh already in progress, skipping")
		return "", nil
	}
	m.refreshing = true
	currentRefresh := m.session.RefreshToken
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	if m.platform == PlatformWeb {
		return "", m.refreshWeb(ctx)
	}
	return m.refreshNative(ctx, currentRefresh)
}

func (m *Manager) refreshWeb(ctx context.Context) error {
	resp, err := m.postJSON(ctx, "/api/auth/refresh", map[string]string{"platform": "web"})
	if err != nil {
		m.signOutLocal(ctx)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		m.SignOut(ctx)
		return errs.ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return errs.Wrapf(errs.ErrInternal, "refresh returned %d", resp.StatusCode)
	}

	claims, err := m.fetchSession(ctx)
	if err != nil {
		return err
	}
	m.adopt(Session{User: claims})
	return nil
}

func (m *Manager) refreshNative(ctx context.Context, currentRefresh string) (string, error) {
	if currentRefresh == "" {
		m.SignOut(ctx)
		return "", errs.ErrUnauthenticated
	}

	resp, err := m.postJSON(ctx, "/api/auth/refresh", map[string]string{
		"platform":     "native",
		"refreshToken": currentRefresh,
	})
	if err != nil {
		m.signOutLocal(ctx)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		m.SignOut(ctx)
		return "", errs.ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return "", errs.Wrapf(errs.ErrInternal, "refresh returned %d", resp.StatusCode)
	}

	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", err
	}

	if err := m.adoptNativeTokens(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// Do issues the request with current credentials attached. On a 401 it
// performs exactly one refresh and one retry with updated credentials; it
// never retries a second time.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	access := m.session.AccessToken
	m.mu.Unlock()

	m.attacher.Attach(req, access)
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	log.Debug().Str("url", req.URL.String()).Msg("request returned 401, attempting token refresh")

	newToken, refreshErr := m.Refresh(req.Context())

	retry := false
	if m.platform == PlatformWeb {
		retry = refreshErr == nil && m.User() != nil
	} else {
		retry = newToken != ""
	}
	if !retry {
		return resp, nil
	}
	resp.Body.Close()

	retryReq := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retryReq.Body = body
	}

	m.attacher.Attach(retryReq, newToken)
	return m.client.Do(retryReq)
}

// SignOut ends the session: web calls the gateway logout endpoint, native
// deletes stored tokens. The in-memory session is always cleared regardless
// of network outcome.
func (m *Manager) SignOut(ctx context.Context) {
	if m.platform == PlatformWeb {
		resp, err := m.postJSON(ctx, "/api/auth/logout", nil)
		if err != nil {
			log.Warn().Err(err).Msg("logout request failed")
		} else {
			resp.Body.Close()
		}
	} else {
		if err := m.store.Delete(ctx, KeyAccessToken); err != nil {
			log.Warn().Err(err).Msg("failed to delete stored access token")
		}
		if err := m.store.Delete(ctx, KeyRefreshToken); err != nil {
			log.Warn().Err(err).Msg("failed to delete stored refresh token")
		}
	}

	m.signOutLocal(ctx)
}

// signOutLocal clears the in-memory session only
func (m *Manager) signOutLocal(ctx context.Context) {
	m.transition(Unauthenticated, func(s *Session) {
		*s = Session{}
	})
}

func (m *Manager) adopt(session Session) {
	m.transition(Authenticated, func(s *Session) {
		*s = session
	})
}

func (m *Manager) adoptNativeTokens(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errs.Wrapf(errs.ErrInvalidToken, "token response missing access token")
	}

	claims, err := token.Decode(accessToken)
	if err != nil {
		return err
	}

	if err := m.store.Persist(ctx, KeyAccessToken, accessToken); err != nil {
		log.Warn().Err(err).Msg("failed to persist access token")
	}
	if refreshToken != "" {
		if err := m.store.Persist(ctx, KeyRefreshToken, refreshToken); err != nil {
			log.Warn().Err(err).Msg("failed to persist refresh token")
		}
	}

	m.mu.Lock()
	if refreshToken == "" {
		refreshToken = m.session.RefreshToken
	}
	m.mu.Unlock()

	m.adopt(Session{User: claims, AccessToken: accessToken, RefreshToken: refreshToken})
	return nil
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// transition applies mutate to the session, records the new state, and
// notifies subscribers outside the lock
func (m *Manager) transition(state State, mutate func(*Session)) {
	m.mu.Lock()
	mutate(&m.session)
	m.state = state
	session := m.session
	subscribers := make([]func(State, Session), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(state, session)
	}
}

func (m *Manager) fetchSession(ctx context.Context) (*token.Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/auth/session", nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.ErrUnauthenticated
	}

	claims := &token.Claims{}
	if err := json.NewDecoder(resp.Body).Decode(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return m.client.Do(req)
}
