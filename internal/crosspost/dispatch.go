package crosspost

import (
	"context"
	"fmt"
	"sync"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/port/notifier"
)

// Dispatcher routes a cross-post by platform tag to the registered
// notifier.Notifier for that platform — the capability set {authenticate,
// post, validate_credentials} from spec §9, modeled here as three methods
// over the same per-platform notifier.Notifier rather than a bespoke
// interface, per the teacher's existing port.
type Dispatcher struct {
	cipher *CredentialCipher

	mu        sync.RWMutex
	platforms map[string]notifier.Notifier
}

// NewDispatcher returns an empty Dispatcher; call Register for each
// supported platform.
func NewDispatcher(cipher *CredentialCipher) *Dispatcher {
	return &Dispatcher{cipher: cipher, platforms: make(map[string]notifier.Notifier)}
}

// Register associates a platform tag (e.g. "discord", "slack") with its
// notifier.Notifier implementation.
func (d *Dispatcher) Register(platform string, n notifier.Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.platforms[platform] = n
}

// Platforms returns the registered platform tags.
func (d *Dispatcher) Platforms() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.platforms))
	for p := range d.platforms {
		out = append(out, p)
	}
	return out
}

func (d *Dispatcher) lookup(platform string) (notifier.Notifier, error) {
	d.mu.RLock()
	n, ok := d.platforms[platform]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported cross-post platform %q", domain.ErrBadRequest, platform)
	}
	return n, nil
}

// EncryptCredentials seals plaintext platform credentials for storage in
// SocialAccount.CredentialsCiphertext (spec §4.12).
func (d *Dispatcher) EncryptCredentials(plaintext []byte) ([]byte, error) {
	return d.cipher.Encrypt(plaintext)
}

// Authenticate confirms the account's stored credentials still decrypt,
// i.e. that the application secret used to seal them still applies.
func (d *Dispatcher) Authenticate(account *user.SocialAccount) error {
	if _, err := d.lookup(account.Platform); err != nil {
		return err
	}
	return d.ValidateCredentials(account)
}

// ValidateCredentials decrypts the stored credential ciphertext,
// returning ErrUnauthorized if it no longer decrypts (e.g. after a
// SECRET_KEY rotation).
func (d *Dispatcher) ValidateCredentials(account *user.SocialAccount) error {
	if len(account.CredentialsCiphertext) == 0 {
		return fmt.Errorf("%w: no credentials stored for account", domain.ErrBadRequest)
	}
	if _, err := d.cipher.Decrypt(account.CredentialsCiphertext); err != nil {
		return fmt.Errorf("%w: stored credentials no longer decrypt: %v", domain.ErrUnauthorized, err)
	}
	return nil
}

// Post dispatches note to account's platform. Platform-specific post
// formatting lives in the registered notifier.Notifier (out of scope
// here per spec §1); Post only validates the platform is supported and
// the stored credentials still decrypt before delegating.
func (d *Dispatcher) Post(ctx context.Context, account *user.SocialAccount, note notifier.Notification) error {
	n, err := d.lookup(account.Platform)
	if err != nil {
		return err
	}
	if err := d.ValidateCredentials(account); err != nil {
		return err
	}
	if err := n.Send(ctx, note); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalServiceFailure, err)
	}
	return nil
}
