package secrets

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey returns a 32-byte key derived from the vault's SECRET_KEY
// via HKDF-SHA256, scoped by info so different consumers (e.g.
// cross-post credential encryption) never share a key even though they
// derive from the same application secret (spec §4.12 "a key derived
// from the application secret via a KDF").
func DeriveKey(v *Vault, info string) ([]byte, error) {
	secret := v.Get("SECRET_KEY")
	if secret == "" {
		return nil, fmt.Errorf("secrets: SECRET_KEY is unset, cannot derive key for %q", info)
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("secrets: derive key for %q: %w", info, err)
	}
	return key, nil
}
