package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// NativeStore is the native variant of the token store: tokens are kept in
// per-key files encrypted at rest with a key derived from a device secret.
type NativeStore struct {
	dir string
	key [32]byte
	mu  sync.Mutex
}

// NewNativeStore creates a store rooted at dir. The encryption key is derived
// from secret; the same secret must be supplied across restarts to read back
// previously persisted tokens.
func NewNativeStore(dir string, secret []byte) (*NativeStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("native store requires a non-empty secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create token store directory")
	}

	s := &NativeStore{dir: dir}
	s.key = sha256.Sum256(secret)
	return s, nil
}

func (s *NativeStore) Persist(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(err, "failed to generate nonce")
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	if err := os.WriteFile(s.path(key), sealed, 0o600); err != nil {
		return errors.Wrapf(err, "failed to persist %q", key)
	}
	return nil
}

func (s *NativeStore) Retrieve(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %q", key)
	}
	if len(sealed) < 24 {
		return "", errors.Errorf("stored value for %q is corrupt", key)
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	value, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", errors.Errorf("failed to decrypt stored value for %q", key)
	}
	return string(value), nil
}

func (s *NativeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete %q", key)
	}
	return nil
}

func (s *NativeStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

var _ TokenStore = (*NativeStore)(nil)
