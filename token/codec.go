package token

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-attendance-auth/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Codec creates and verifies signed, time-limited session tokens
type Codec struct {
	signer Signer
	secret string
}

// NewCodec creates a codec backed by an HMAC signer using the process-wide secret
func NewCodec(secret string) *Codec {
	return &Codec{
		signer: NewHMACSigner(secret),
		secret: secret,
	}
}

// Sign produces a signed token of the given kind encoding claims plus
// standard time fields. Refresh tokens get a fresh jti and type "refresh".
func (c *Codec) Sign(claims Claims, kind Kind, ttl time.Duration) (string, error) {
	if c.secret == "" {
		return "", errs.ErrMissingSigningSecret
	}

	now := NowTimeFunc()
	claims.IssuedAt = jwtlib.NewNumericDate(now)
	claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))

	if kind == KindRefresh {
		claims.TokenType = "refresh"
		claims.ID = uuid.New().String()
	}

	return c.signer.Sign(claims)
}

// Verify parses and validates a token, returning its claims
func (c *Codec) Verify(rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwtlib.ParseWithClaims(rawToken, claims, c.signer.GetVerificationKey)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, errs.Wrapf(errs.ErrTokenExpired, "token verification")
		}
		return nil, errs.Wrapf(errs.ErrInvalidToken, "token verification: %v", err)
	}
	if !token.Valid {
		return nil, errs.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "token missing subject")
	}
	return claims, nil
}

// Decode extracts claims without verifying the signature. Used only for
// optimistic local inspection such as checking expiry before a refresh;
// never trusted for authorization decisions.
func Decode(rawToken string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, errs.Wrapf(errs.ErrInvalidToken, "decode: %v", err)
	}
	return claims, nil
}
