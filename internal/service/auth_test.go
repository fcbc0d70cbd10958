package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agblogger/agblogger/internal/adapter/sqlite"
	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/service"
)

func newTestAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, config.Database{DSN: "file::memory:?cache=shared", MaxOpenConns: 1, BusyTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store := sqlite.NewStore(db)

	cfg := &config.Auth{
		SecretKey:           "test-secret-key-must-be-long-enough",
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		BcryptCost:          4, // low cost for fast tests
		MinPasswordStrength: 0,
	}
	return service.NewAuthService(store, cfg)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, &user.CreateRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "Password123",
		IsAdmin:  true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role() != user.RoleAdmin {
		t.Errorf("role = %q, want admin", u.Role())
	}

	tokens, err := svc.Login(ctx, user.LoginRequest{Username: "ada", Password: "Password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.CSRFToken == "" {
		t.Fatalf("expected non-empty tokens, got %+v", tokens)
	}

	claims, err := svc.ValidateAccessToken(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != user.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthService_InvalidLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &user.CreateRequest{
		Username: "bo",
		Email:    "bo@example.com",
		Password: "Password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, user.LoginRequest{Username: "bo", Password: "wrongpassword"}); err == nil {
		t.Fatal("expected error for wrong password")
	}

	// Nonexistent username still performs the dummy bcrypt comparison and
	// fails with the same error, rather than a distinguishable one.
	if _, err := svc.Login(ctx, user.LoginRequest{Username: "nobody", Password: "Password123"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for nonexistent user, got %v", err)
	}
}

func TestAuthService_AccountLocksAfterMaxFailedAttempts(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &user.CreateRequest{
		Username: "cass",
		Email:    "cass@example.com",
		Password: "Password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < user.MaxFailedAttempts; i++ {
		if _, err := svc.Login(ctx, user.LoginRequest{Username: "cass", Password: "wrong"}); err == nil {
			t.Fatal("expected error for wrong password")
		}
	}

	if _, err := svc.Login(ctx, user.LoginRequest{Username: "cass", Password: "Password123"}); err == nil {
		t.Fatal("expected account to be locked after max failed attempts")
	}
}

func TestAuthService_RefreshTokenRotation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &user.CreateRequest{
		Username: "dee",
		Email:    "dee@example.com",
		Password: "Password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	tokens, err := svc.Login(ctx, user.LoginRequest{Username: "dee", Password: "Password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.RefreshTokens(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}

	// Reusing the old (now rotated-out) refresh token must fail.
	if _, err := svc.RefreshTokens(ctx, tokens.RefreshToken); err == nil {
		t.Fatal("expected reuse of rotated-out refresh token to fail")
	}
}

func TestAuthService_InviteRegistrationGrantsAuthRole(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, &user.CreateRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: "Password123",
		IsAdmin:  true,
	})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}

	inv, err := svc.CreateInviteCode(ctx, admin.ID, user.CreateInviteRequest{})
	if err != nil {
		t.Fatalf("create invite code: %v", err)
	}

	u, err := svc.RegisterWithInvite(ctx, &user.InviteRegisterRequest{
		Code:     inv.Code,
		Username: "invitee",
		Email:    "invitee@example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("register with invite: %v", err)
	}
	if u.Role() != user.RoleAuth {
		t.Fatalf("expected auth role from invite registration, got %s", u.Role())
	}

	// The invite code is single-use.
	if _, err := svc.RegisterWithInvite(ctx, &user.InviteRegisterRequest{
		Code:     inv.Code,
		Username: "second",
		Email:    "second@example.com",
		Password: "Password123",
	}); err == nil {
		t.Fatal("expected reuse of invite code to fail")
	}
}

func TestAuthService_PersonalAccessTokenLifecycle(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, &user.CreateRequest{
		Username: "eli",
		Email:    "eli@example.com",
		Password: "Password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := svc.CreatePAT(ctx, u.ID, user.CreatePATRequest{Label: "ci"})
	if err != nil {
		t.Fatalf("create PAT: %v", err)
	}

	validated, err := svc.ValidatePAT(ctx, resp.PlainToken)
	if err != nil {
		t.Fatalf("validate PAT: %v", err)
	}
	if validated.ID != u.ID {
		t.Fatalf("expected user %s, got %s", u.ID, validated.ID)
	}
}

func TestAuthService_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.ValidateAccessToken(ctx, "garbage.token.here"); err == nil {
		t.Fatal("expected error for invalid token")
	}
	if _, err := svc.ValidateAccessToken(ctx, "not-even-three-parts"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestAuthService_BootstrapAdmin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// No admin credentials configured, so no user should exist; a
	// second call remains a no-op either way.
	if err := svc.BootstrapAdmin(ctx); err != nil {
		t.Fatalf("bootstrap second: %v", err)
	}
}
