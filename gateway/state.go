package gateway

import "strings"

// The authorization state threaded through the redirect dance combines the
// requesting platform with the caller's own CSRF state. It is created at
// authorize time and consumed exactly once at callback time. The consuming
// client must verify the returned state matches what it sent.

const (
	platformWeb    = "web"
	platformMobile = "mobile"
)

// combineState prefixes the caller's state with the platform so the callback
// can decide where to send the final redirect
func combineState(platform, callerState string) string {
	return platform + "|" + callerState
}

// splitState recovers the platform and the original caller state. Splits on
// the first "|" only; the caller state is passed through byte-for-byte.
func splitState(combined string) (platform, callerState string) {
	platform, callerState, _ = strings.Cut(combined, "|")
	return platform, callerState
}
