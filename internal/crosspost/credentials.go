// Package crosspost implements Outbound Cross-Posting Safety (spec
// §4.12): encryption at rest for stored social-account credentials and
// the capability-set dispatch boundary described in spec §9. The
// platform-specific post formatting behind that boundary is an
// out-of-scope external collaborator (spec §1); only the capability set
// and its SSRF-guarded transport live here.
package crosspost

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/agblogger/agblogger/internal/secrets"
)

// credentialKeyInfo scopes the HKDF derivation so credential encryption
// never shares a key with any other SECRET_KEY-derived material.
const credentialKeyInfo = "agblogger-crosspost-credentials-v1"

// CredentialCipher encrypts and decrypts SocialAccount.CredentialsCiphertext
// with a key derived from the application secret (spec §4.12).
type CredentialCipher struct {
	gcm cipher.AEAD
}

// NewCredentialCipher derives the AES-GCM key from vault's SECRET_KEY.
func NewCredentialCipher(vault *secrets.Vault) (*CredentialCipher, error) {
	key, err := secrets.DeriveKey(vault, credentialKeyInfo)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crosspost: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crosspost: new GCM: %w", err)
	}
	return &CredentialCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext credentials into the ciphertext persisted as
// SocialAccount.CredentialsCiphertext (nonce prefixed).
func (c *CredentialCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crosspost: generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt recovers the plaintext credentials from ciphertext produced by
// Encrypt.
func (c *CredentialCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("crosspost: ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crosspost: decrypt: %w", err)
	}
	return plaintext, nil
}
