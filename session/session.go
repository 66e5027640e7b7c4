// Package session is the client half of the auth core: it restores sessions
// on startup, refreshes expiring tokens, signs users in and out, and wraps
// outgoing requests with credentials.
package session

import "github.com/jrsteele09/go-attendance-auth/token"

// State is the Session Manager's lifecycle state
type State int

const (
	Uninitialized State = iota
	Restoring
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Restoring:
		return "restoring"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session is the authenticated state held by a client. It is the single
// source of truth for whether the user is authenticated.
type Session struct {
	User         *token.Claims
	AccessToken  string
	RefreshToken string
}

// Platform selects the token store and credential attachment strategy
type Platform string

const (
	PlatformNative Platform = "native"
	PlatformWeb    Platform = "web"
)
