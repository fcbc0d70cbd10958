package secrets_test

import (
	"testing"

	"github.com/agblogger/agblogger/internal/secrets"
)

func staticLoader(values map[string]string) secrets.Loader {
	return func() (map[string]string, error) { return values, nil }
}

func TestDeriveKeyIsDeterministicAndScoped(t *testing.T) {
	v, err := secrets.NewVault(staticLoader(map[string]string{"SECRET_KEY": "super-secret-value"}))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	k1, err := secrets.DeriveKey(v, "crosspost-credentials")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := secrets.DeriveKey(v, "crosspost-credentials")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatal("expected DeriveKey to be deterministic for the same info string")
	}

	other, err := secrets.DeriveKey(v, "something-else")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if string(other) == string(k1) {
		t.Fatal("expected different info strings to derive different keys")
	}
	if len(k1) != 32 {
		t.Fatalf("expected a 32-byte key, got %d", len(k1))
	}
}

func TestDeriveKeyRequiresSecretKey(t *testing.T) {
	v, err := secrets.NewVault(staticLoader(map[string]string{}))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if _, err := secrets.DeriveKey(v, "anything"); err == nil {
		t.Fatal("expected an error when SECRET_KEY is unset")
	}
}
