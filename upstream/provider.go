// Package upstream talks to the OAuth2 identity provider that the auth
// service delegates identity verification to.
package upstream

import (
	"context"
	"fmt"
)

// Identity is the profile extracted from the provider's ID token
type Identity struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

// Tokens is the result of a successful code exchange
type Tokens struct {
	AccessToken  string
	RefreshToken string
	RawIDToken   string
	Identity     Identity
}

// Provider abstracts the upstream identity provider
type Provider interface {
	// AuthCodeURL builds the provider authorization URL for the given
	// state and space-separated scope
	AuthCodeURL(state, scope string) string

	// Exchange trades an authorization code for provider tokens and the
	// user's identity
	Exchange(ctx context.Context, code string) (*Tokens, error)
}

// ExchangeError carries the provider's error code and description when the
// code exchange is rejected
type ExchangeError struct {
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("upstream exchange failed: %s", e.Code)
	}
	return fmt.Sprintf("upstream exchange failed: %s (%s)", e.Code, e.Description)
}
