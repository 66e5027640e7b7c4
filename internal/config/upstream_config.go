package config

// UpstreamConfig describes the upstream OAuth2 identity provider
type UpstreamConfig interface {
	GetUpstreamClientID() string
	GetUpstreamClientSecret() string
	GetUpstreamRedirectURI() string
	GetUpstreamAuthURL() string
	GetUpstreamTokenURL() string
	GetUpstreamIssuer() string
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Upstream) GetUpstreamClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

// GetUpstreamRedirectURI returns the redirect URI registered with the upstream
// provider, which is always the gateway's own callback endpoint
func (u Upstream) GetUpstreamRedirectURI() string {
	return EnvVars{}.GetBaseURL() + "/api/auth/callback"
}

func (Upstream) GetUpstreamAuthURL() string {
	return GetEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth")
}

func (Upstream) GetUpstreamTokenURL() string {
	return GetEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
}

func (Upstream) GetUpstreamIssuer() string {
	return GetEnv("GOOGLE_ISSUER", "https://accounts.google.com")
}
