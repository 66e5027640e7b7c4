package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-attendance-auth/internal/config"
	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Google implements Provider against Google's OAuth2 endpoints
type Google struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewGoogle creates a Google provider from configuration. ID tokens are
// decoded without signature verification; the trust boundary is the
// provider's TLS channel.
func NewGoogle(cfg config.Config) *Google {
	return &Google{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GetUpstreamClientID(),
			ClientSecret: cfg.GetUpstreamClientSecret(),
			RedirectURL:  cfg.GetUpstreamRedirectURI(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.GetUpstreamAuthURL(),
				TokenURL: cfg.GetUpstreamTokenURL(),
			},
		},
	}
}

// NewGoogleVerified creates a Google provider that additionally verifies ID
// token signatures against the provider's published keys. Falls back to
// unverified decoding if the discovery document cannot be fetched.
func NewGoogleVerified(ctx context.Context, cfg config.Config) *Google {
	g := NewGoogle(cfg)

	provider, err := oidc.NewProvider(ctx, cfg.GetUpstreamIssuer())
	if err != nil {
		log.Warn().Err(err).Msg("OIDC discovery failed, ID tokens will not be signature-checked")
		return g
	}

	g.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.GetUpstreamClientID()})
	return g
}

func (g *Google) AuthCodeURL(state, scope string) string {
	cfg := *g.oauth2Config // copy
	cfg.Scopes = strings.Fields(scope)

	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *Google) Exchange(ctx context.Context, code string) (*Tokens, error) {
	tok, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, errs.Wrapf(errs.ErrUpstream, "%w", &ExchangeError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			})
		}
		return nil, errs.Wrapf(errs.ErrUpstream, "code exchange: %v", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" || tok.AccessToken == "" {
		return nil, errs.ErrIncompleteUpstreamResponse
	}

	identity, err := g.identityFromIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RawIDToken:   rawIDToken,
		Identity:     *identity,
	}, nil
}

func (g *Google) identityFromIDToken(ctx context.Context, rawIDToken string) (*Identity, error) {
	if g.verifier != nil {
		idToken, err := g.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrUpstream, "ID token verification: %v", err)
		}
		identity := &Identity{}
		if err := idToken.Claims(identity); err != nil {
			return nil, errs.Wrapf(errs.ErrIncompleteUpstreamResponse, "ID token claims: %v", err)
		}
		return identity, nil
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
		return nil, errs.Wrapf(errs.ErrIncompleteUpstreamResponse, "ID token decode: %v", err)
	}

	identity := &Identity{}
	identity.Subject, _ = claims["sub"].(string)
	identity.Name, _ = claims["name"].(string)
	identity.GivenName, _ = claims["given_name"].(string)
	identity.FamilyName, _ = claims["family_name"].(string)
	identity.Email, _ = claims["email"].(string)
	identity.EmailVerified, _ = claims["email_verified"].(bool)
	identity.Picture, _ = claims["picture"].(string)

	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: ID token missing subject", errs.ErrIncompleteUpstreamResponse)
	}

	return identity, nil
}
