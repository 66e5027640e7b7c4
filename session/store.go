package session

import "context"

// Token store keys
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// TokenStore is platform-specific persistent storage for tokens. After
// Persist(key, value), Retrieve(key) returns the same value until Delete or
// expiry. Retrieve returns "" for an absent key; Delete is idempotent.
type TokenStore interface {
	Persist(ctx context.Context, key, value string) error
	Retrieve(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ImplicitStore is the web variant of the token store. The tokens live in
// HTTP-only cookies set by the gateway, which the client cannot read;
// presence is inferred only through successful session checks, so every
// operation here is a no-op.
type ImplicitStore struct{}

var _ TokenStore = ImplicitStore{}

func (ImplicitStore) Persist(ctx context.Context, key, value string) error { return nil }

func (ImplicitStore) Retrieve(ctx context.Context, key string) (string, error) { return "", nil }

func (ImplicitStore) Delete(ctx context.Context, key string) error { return nil }
