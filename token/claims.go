package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes the two token artifacts the codec produces
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload of an app-issued session token. Access tokens carry
// the full set; refresh tokens carry the reduced set needed to reconstruct a
// new access token without an upstream round-trip, plus type "refresh".
type Claims struct {
	Name          string `json:"name,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Picture       string `json:"picture,omitempty"`

	// Provider-scoped secrets used to call the spreadsheet API on the
	// user's behalf
	ProviderAccessToken  string `json:"google_access_token,omitempty"`
	ProviderRefreshToken string `json:"google_refresh_token,omitempty"`

	// TokenType is "refresh" on refresh tokens and empty on access tokens
	TokenType string `json:"type,omitempty"`

	jwt.RegisteredClaims
}

// RefreshClaims returns the reduced claim set embedded in a refresh token
func (c Claims) RefreshClaims() Claims {
	return Claims{
		Name:                 c.Name,
		GivenName:            c.GivenName,
		FamilyName:           c.FamilyName,
		Email:                c.Email,
		EmailVerified:        c.EmailVerified,
		Picture:              c.Picture,
		ProviderAccessToken:  c.ProviderAccessToken,
		ProviderRefreshToken: c.ProviderRefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: c.Subject,
		},
	}
}
