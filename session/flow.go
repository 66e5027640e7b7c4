package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"

	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
)

// SignInFlow holds the ephemeral PKCE material for one browser-based
// authorization-code flow. The state must be validated when the browser
// returns; that check is the client's CSRF protection.
type SignInFlow struct {
	State        string
	CodeVerifier string
}

// NewSignInFlow generates fresh state and PKCE verifier values
func NewSignInFlow() *SignInFlow {
	return &SignInFlow{
		State:        generateRandomString(32),
		CodeVerifier: generateRandomString(32),
	}
}

// AuthorizeURL builds the gateway authorize URL to open in the browser
func (f *SignInFlow) AuthorizeURL(baseURL, redirectURI, scope string) string {
	params := url.Values{}
	params.Set("client_id", "google")
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", scope)
	params.Set("state", f.State)
	params.Set("code_challenge", generateCodeChallenge(f.CodeVerifier))
	params.Set("code_challenge_method", "S256")

	return baseURL + "/api/auth/authorize?" + params.Encode()
}

// ValidateState checks the state returned by the browser against the one this
// flow sent out
func (f *SignInFlow) ValidateState(returned string) error {
	if returned == "" || returned != f.State {
		return errs.ErrInvalidState
	}
	return nil
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a PKCE code challenge from a verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
