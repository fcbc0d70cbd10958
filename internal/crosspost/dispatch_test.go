package crosspost_test

import (
	"context"
	"errors"
	"testing"

	"github.com/agblogger/agblogger/internal/crosspost"
	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/port/notifier"
	"github.com/agblogger/agblogger/internal/secrets"
)

func staticLoader(values map[string]string) secrets.Loader {
	return func() (map[string]string, error) { return values, nil }
}

func newTestCipher(t *testing.T) *crosspost.CredentialCipher {
	t.Helper()
	vault, err := secrets.NewVault(staticLoader(map[string]string{"SECRET_KEY": "test-secret-key-value"}))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	cipher, err := crosspost.NewCredentialCipher(vault)
	if err != nil {
		t.Fatalf("NewCredentialCipher: %v", err)
	}
	return cipher
}

type fakeNotifier struct {
	name string
	sent []notifier.Notification
	err  error
}

func (f *fakeNotifier) Name() string                             { return f.name }
func (f *fakeNotifier) Capabilities() notifier.Capabilities       { return notifier.Capabilities{} }
func (f *fakeNotifier) Send(_ context.Context, n notifier.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func TestCredentialCipherRoundTrip(t *testing.T) {
	cipher := newTestCipher(t)
	plaintext := []byte(`{"token":"abc123"}`)

	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatal("expected ciphertext to differ from plaintext")
	}

	decrypted, err := cipher.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("expected round-trip to recover plaintext, got %q", decrypted)
	}
}

func TestDispatcherPostRejectsUnknownPlatform(t *testing.T) {
	d := crosspost.NewDispatcher(newTestCipher(t))
	account := &user.SocialAccount{Platform: "mastodon", CredentialsCiphertext: []byte("irrelevant")}

	err := d.Post(context.Background(), account, notifier.Notification{Title: "hi"})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for unknown platform, got %v", err)
	}
}

func TestDispatcherPostRejectsUndecryptableCredentials(t *testing.T) {
	cipher := newTestCipher(t)
	d := crosspost.NewDispatcher(cipher)
	fn := &fakeNotifier{name: "discord"}
	d.Register("discord", fn)

	account := &user.SocialAccount{Platform: "discord", CredentialsCiphertext: []byte("not-valid-ciphertext")}
	err := d.Post(context.Background(), account, notifier.Notification{Title: "hi"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad ciphertext, got %v", err)
	}
	if len(fn.sent) != 0 {
		t.Fatal("expected Send not to be called when credentials fail to decrypt")
	}
}

func TestDispatcherPostSendsThroughRegisteredNotifier(t *testing.T) {
	cipher := newTestCipher(t)
	ciphertext, err := cipher.Encrypt([]byte(`{"webhook":"configured"}`))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	d := crosspost.NewDispatcher(cipher)
	fn := &fakeNotifier{name: "slack"}
	d.Register("slack", fn)

	account := &user.SocialAccount{Platform: "slack", CredentialsCiphertext: ciphertext}
	note := notifier.Notification{Title: "New post", Message: "Published a thing"}

	if err := d.Post(context.Background(), account, note); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(fn.sent) != 1 || fn.sent[0].Title != "New post" {
		t.Fatalf("expected notification to reach the registered notifier, got %+v", fn.sent)
	}
}
