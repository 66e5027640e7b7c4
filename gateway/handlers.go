package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-attendance-auth/gateway/cookies"
	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
	"github.com/jrsteele09/go-attendance-auth/token"
	"github.com/jrsteele09/go-attendance-auth/upstream"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Authorize begins the authorization flow: validates the internal client and
// redirect_uri, derives the platform, and redirects to the upstream provider
// with the combined state
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.GetUpstreamClientID() == "" {
			writeJSONError(w, "server_error", "Missing GOOGLE_CLIENT_ID environment variable", http.StatusInternalServerError)
			return
		}

		q := r.URL.Query()

		var platform string
		switch redirectURI := q.Get("redirect_uri"); {
		case redirectURI != "" && redirectURI == s.config.GetAppScheme():
			platform = platformMobile
		case redirectURI == s.config.GetBaseURL():
			platform = platformWeb
		default:
			writeJSONError(w, "invalid_request", errs.ErrInvalidRedirect.Error(), http.StatusBadRequest)
			return
		}

		if q.Get("client_id") != internalClientID {
			writeJSONError(w, "invalid_client", errs.ErrInvalidClient.Error(), http.StatusBadRequest)
			return
		}

		scope := q.Get("scope")
		if scope == "" {
			scope = "identity"
		}

		state := combineState(platform, q.Get("state"))
		http.Redirect(w, r, s.provider.AuthCodeURL(state, scope), http.StatusFound)
	}
}

// Callback receives the upstream provider's redirect and forwards the code to
// the native scheme or web origin, restoring the caller's original state
func (s *Server) Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		combined := r.URL.Query().Get("state")
		if combined == "" {
			writeJSONError(w, "invalid_request", errs.ErrInvalidState.Error(), http.StatusBadRequest)
			return
		}

		platform, callerState := splitState(combined)

		target := s.config.GetAppScheme()
		if platform == platformWeb {
			target = s.config.GetBaseURL()
		}

		params := url.Values{}
		params.Set("code", r.URL.Query().Get("code"))
		params.Set("state", callerState)

		http.Redirect(w, r, target+"?"+params.Encode(), http.StatusFound)
	}
}

// Token exchanges an authorization code with the upstream provider and mints
// the app's own access and refresh tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.FormValue("code")
		platform := r.FormValue("platform")
		if platform == "" {
			platform = "native"
		}

		if code == "" {
			writeJSONError(w, "invalid_request", errs.ErrMissingCode.Error(), http.StatusBadRequest)
			return
		}

		upstreamTokens, err := s.provider.Exchange(r.Context(), code)
		if err != nil {
			var exchangeErr *upstream.ExchangeError
			switch {
			case errors.As(err, &exchangeErr):
				writeJSONError(w, exchangeErr.Code, exchangeErr.Description, http.StatusBadRequest)
			case errors.Is(err, errs.ErrIncompleteUpstreamResponse):
				writeJSONError(w, "invalid_request", "Missing required parameters", http.StatusBadRequest)
			case errors.Is(err, errs.ErrUpstream):
				writeJSONError(w, "invalid_grant", err.Error(), http.StatusBadRequest)
			default:
				log.Error().Err(err).Msg("token exchange failed")
				writeJSONError(w, "server_error", "Server error", http.StatusInternalServerError)
			}
			return
		}

		accessToken, refreshToken, err := s.mintTokenPair(claimsFromIdentity(upstreamTokens))
		if err != nil {
			if errors.Is(err, errs.ErrMissingSigningSecret) {
				writeJSONError(w, "server_error", "Missing JWT_SECRET environment variable", http.StatusInternalServerError)
				return
			}
			log.Error().Err(err).Msg("token minting failed")
			writeJSONError(w, "server_error", "Server error", http.StatusInternalServerError)
			return
		}

		s.respondWithTokens(w, platform, accessToken, refreshToken)
	}
}

// Session verifies the access-token cookie and returns the decoded claims
// plus the computed absolute cookie expiry
func (s *Server) Session() http.HandlerFunc {
	type sessionResponse struct {
		token.Claims
		CookieExpiration *int64 `json:"cookieExpiration"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		cookieHeader := r.Header.Get("Cookie")
		if cookieHeader == "" {
			writeJSONError(w, "unauthenticated", errs.ErrUnauthenticated.Error(), http.StatusUnauthorized)
			return
		}

		parsed := cookies.Parse(cookieHeader)
		c, ok := parsed[accessCookieName]
		if !ok || c.Value == "" {
			writeJSONError(w, "unauthenticated", errs.ErrUnauthenticated.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := s.codec.Verify(c.Value)
		if err != nil {
			writeJSONError(w, "invalid_token", "Invalid token", http.StatusUnauthorized)
			return
		}

		var cookieExpiration *int64
		if maxAgeAttr, ok := c.Attributes["Max-Age"]; ok {
			if maxAge, err := strconv.ParseInt(maxAgeAttr, 10, 64); err == nil {
				issuedAt := token.NowTimeFunc().Unix()
				if claims.IssuedAt != nil {
					issuedAt = claims.IssuedAt.Unix()
				}
				exp := issuedAt + maxAge
				cookieExpiration = &exp
			}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(sessionResponse{Claims: *claims, CookieExpiration: cookieExpiration})
	}
}

// Refresh verifies a refresh token (cookie on web, body on native) and mints
// a fresh token pair without an upstream round-trip. The refresh token is
// rotated on every use.
func (s *Server) Refresh() http.HandlerFunc {
	type refreshRequest struct {
		Platform     string `json:"platform"`
		RefreshToken string `json:"refreshToken"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		raw := req.RefreshToken
		if req.Platform == platformWeb {
			raw = cookies.Get(r.Header.Get("Cookie"), refreshCookieName)
		}

		if raw == "" {
			writeJSONError(w, "unauthenticated", "Missing refresh token", http.StatusUnauthorized)
			return
		}

		claims, err := s.codec.Verify(raw)
		if err != nil || claims.TokenType != "refresh" {
			writeJSONError(w, "invalid_token", "Invalid refresh token", http.StatusUnauthorized)
			return
		}

		accessToken, refreshToken, err := s.mintTokenPair(claims.RefreshClaims())
		if err != nil {
			if errors.Is(err, errs.ErrMissingSigningSecret) {
				writeJSONError(w, "server_error", "Missing JWT_SECRET environment variable", http.StatusInternalServerError)
				return
			}
			log.Error().Err(err).Msg("token minting failed")
			writeJSONError(w, "server_error", "Server error", http.StatusInternalServerError)
			return
		}

		s.respondWithTokens(w, req.Platform, accessToken, refreshToken)
	}
}

// Logout clears both auth cookies. Native clients delete their stored tokens
// locally and never call this endpoint.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clearAuthCookies(w)

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}
}

// Helper functions

func claimsFromIdentity(t *upstream.Tokens) token.Claims {
	claims := token.Claims{
		Name:                 t.Identity.Name,
		GivenName:            t.Identity.GivenName,
		FamilyName:           t.Identity.FamilyName,
		Email:                t.Identity.Email,
		EmailVerified:        t.Identity.EmailVerified,
		Picture:              t.Identity.Picture,
		ProviderAccessToken:  t.AccessToken,
		ProviderRefreshToken: t.RefreshToken,
	}
	claims.Subject = t.Identity.Subject
	return claims
}

func (s *Server) mintTokenPair(claims token.Claims) (accessToken, refreshToken string, err error) {
	accessToken, err = s.codec.Sign(claims, token.KindAccess, s.config.GetAccessTokenExpiry())
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.codec.Sign(claims.RefreshClaims(), token.KindRefresh, s.config.GetRefreshTokenExpiry())
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// respondWithTokens sets cookies for web clients and returns the token pair
// as JSON for native clients, which cannot use cookies
func (s *Server) respondWithTokens(w http.ResponseWriter, platform, accessToken, refreshToken string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")

	if platform == platformWeb {
		s.setAuthCookies(w, accessToken, refreshToken)

		issuedAt := token.NowTimeFunc().Unix()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":   true,
			"issuedAt":  issuedAt,
			"expiresAt": issuedAt + int64(s.config.GetAccessTokenExpiry().Seconds()),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.config.GetAccessTokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     RouteRefresh,
		MaxAge:   int(s.config.GetRefreshTokenExpiry().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     RouteRefresh,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSONError writes a structured JSON error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
