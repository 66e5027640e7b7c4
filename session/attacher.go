package session

import "net/http"

// CredentialAttacher attaches the current credentials to an outgoing request.
// Both variants are selected once at startup; downstream logic is
// platform-agnostic.
type CredentialAttacher interface {
	Attach(req *http.Request, accessToken string)
}

// BearerAttacher sets an Authorization bearer header (native clients)
type BearerAttacher struct{}

func (BearerAttacher) Attach(req *http.Request, accessToken string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// CookieAttacher relies on the HTTP client's cookie jar carrying the session
// cookie (web clients); nothing is attached explicitly
type CookieAttacher struct{}

func (CookieAttacher) Attach(req *http.Request, accessToken string) {}
