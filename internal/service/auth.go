// Package service hosts AgBlogger's application services: Authentication
// & Sessions (spec §4.11) is the one non-trivial stateful service, gluing
// the JWT/cookie/CSRF contract, bcrypt password checks, invite codes, and
// personal access tokens on top of the database.Store port.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/port/database"
)

// dummyHash is compared against on a login attempt for a username that
// doesn't exist, so the bcrypt cost is paid either way and the two code
// paths take indistinguishable time (spec §4.11 "dummy bcrypt check to
// equalize timing").
var dummyHash = mustHash("this is not a real password, only timing filler")

func mustHash(pw string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}

// AuthService implements login, refresh, invite-based registration, and
// personal access tokens over the two-role model (spec §4.11).
type AuthService struct {
	store  database.Store
	cfg    *config.Auth
	secret []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, cfg *config.Auth) *AuthService {
	return &AuthService{store: store, cfg: cfg, secret: []byte(cfg.SecretKey)}
}

// Register creates a new user directly (admin-only path; invite-based
// self-registration goes through RegisterWithInvite).
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	if err := s.checkPasswordStrength(req.Password, req.Username, req.Email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		IsAdmin:      req.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// RegisterWithInvite redeems a single-use invite code and creates a user
// with the `auth` role (spec §9 open-question resolution: invite
// registration grants auth, not admin). Self-registration without an
// invite is gated on cfg.RegistrationEnabled by the HTTP boundary.
func (s *AuthService) RegisterWithInvite(ctx context.Context, req *user.InviteRegisterRequest) (*user.User, error) {
	codeHash := hashSHA256(req.Code)
	inv, err := s.store.GetInviteCodeByHash(ctx, codeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid invite code", domain.ErrBadRequest)
	}
	if inv.UsedBy != nil {
		return nil, fmt.Errorf("%w: invite code already used", domain.ErrBadRequest)
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, fmt.Errorf("%w: invite code expired", domain.ErrBadRequest)
	}

	createReq := &user.CreateRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		IsAdmin:     false,
	}
	u, err := s.Register(ctx, createReq)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkInviteCodeUsed(ctx, codeHash, u.ID); err != nil {
		slog.Warn("failed to mark invite code used", "error", err)
	}
	return u, nil
}

// CreateInviteCode issues a new single-use invite code on behalf of
// createdBy (spec §4.11).
func (s *AuthService) CreateInviteCode(ctx context.Context, createdBy string, req user.CreateInviteRequest) (*user.CreateInviteResponse, error) {
	raw, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite code: %w", err)
	}
	ttl := time.Duration(req.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	inv := &user.InviteCode{CreatedBy: createdBy, ExpiresAt: time.Now().Add(ttl)}
	if err := s.store.CreateInviteCode(ctx, inv, hashSHA256(raw)); err != nil {
		return nil, fmt.Errorf("create invite code: %w", err)
	}
	return &user.CreateInviteResponse{Code: raw, ExpiresAt: inv.ExpiresAt}, nil
}

// SessionTokens is the pair issued on login/refresh: a signed JWT and an
// opaque refresh token, plus the CSRF token to pair with the cookie-based
// JWT (spec §4.11 "CSRF token is also rotated on login and refresh").
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresIn    int
	User         user.User
}

// Login authenticates a user, always performing a bcrypt comparison
// (real or dummy) so a nonexistent username takes the same time as a
// wrong password (spec §4.11).
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*SessionTokens, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	if u.IsLocked() {
		return nil, fmt.Errorf("%w: account is temporarily locked", domain.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		u.FailedAttempts++
		if u.FailedAttempts >= user.MaxFailedAttempts {
			u.LockedUntil = time.Now().Add(user.LockoutDuration)
			slog.Warn("account locked due to failed login attempts", "username", u.Username)
		}
		if updateErr := s.store.UpdateUser(ctx, u); updateErr != nil {
			slog.Error("failed to persist lockout state", "error", updateErr)
		}
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}

	if u.FailedAttempts > 0 || !u.LockedUntil.IsZero() {
		u.FailedAttempts = 0
		u.LockedUntil = time.Time{}
		if updateErr := s.store.UpdateUser(ctx, u); updateErr != nil {
			slog.Error("failed to reset lockout state", "error", updateErr)
		}
	}

	return s.issueSession(ctx, u)
}

// RefreshTokens validates and rotates a refresh token, issuing a new
// access token, refresh token, and CSRF token (spec §4.11).
func (s *AuthService) RefreshTokens(ctx context.Context, rawRefreshToken string) (*SessionTokens, error) {
	tokenHash := hashSHA256(rawRefreshToken)
	rt, err := s.store.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", domain.ErrUnauthorized)
	}
	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshToken(ctx, rt.ID)
		return nil, fmt.Errorf("%w: refresh token expired", domain.ErrUnauthorized)
	}

	u, err := s.store.GetUser(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	newRaw, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(newRaw),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.RotateRefreshToken(ctx, rt.ID, newRT); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	tokens, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	tokens.RefreshToken = newRaw
	return tokens, nil
}

func (s *AuthService) issueSession(ctx context.Context, u *user.User) (*SessionTokens, error) {
	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, fmt.Errorf("sign jwt: %w", err)
	}

	rawRefresh, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(rawRefresh),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	csrfToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	return &SessionTokens{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		CSRFToken:    csrfToken,
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		User:         *u,
	}, nil
}

// Logout revokes the current access token by JTI (if present) and
// deletes every refresh token for the user.
func (s *AuthService) Logout(ctx context.Context, userID, jti string, tokenExpiry time.Time) error {
	if jti != "" {
		if err := s.store.RevokeToken(ctx, jti, tokenExpiry); err != nil {
			slog.Warn("failed to revoke access token on logout", "jti", jti, "error", err)
		}
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// ValidateAccessToken verifies a JWT and checks revocation, failing
// closed if the revocation check itself cannot be performed (spec §4.11
// "decode failures ... return no user — never raise to the caller").
func (s *AuthService) ValidateAccessToken(ctx context.Context, tokenStr string) (*user.TokenClaims, error) {
	claims, err := s.verifyJWT(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	if claims.JTI != "" {
		revoked, dbErr := s.store.IsTokenRevoked(ctx, claims.JTI)
		if dbErr != nil {
			slog.Error("token revocation check failed, denying token", "jti", claims.JTI, "error", dbErr)
			return nil, fmt.Errorf("%w: unable to verify token status", domain.ErrUnauthorized)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token has been revoked", domain.ErrUnauthorized)
		}
	}
	return claims, nil
}

// ValidatePAT looks up a personal access token by its SHA-256 hash,
// rejecting expired or revoked tokens and touching last_used_at on
// success (spec §4.11).
func (s *AuthService) ValidatePAT(ctx context.Context, rawToken string) (*user.User, error) {
	pat, err := s.store.GetPATByHash(ctx, hashSHA256(rawToken))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if pat.Revoked {
		return nil, fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
	}
	if pat.ExpiresAt != nil && time.Now().After(*pat.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}

	u, err := s.store.GetUser(ctx, pat.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.store.TouchPAT(ctx, pat.ID); err != nil {
		slog.Warn("failed to update PAT last_used_at", "pat_id", pat.ID, "error", err)
	}
	return u, nil
}

// CreatePAT issues a new personal access token for userID (spec §3, §4.11).
func (s *AuthService) CreatePAT(ctx context.Context, userID string, req user.CreatePATRequest) (*user.CreatePATResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	raw, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("generate PAT: %w", err)
	}
	plain := user.PATPrefix + raw

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	pat := &user.PersonalAccessToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Label:     req.Label,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreatePAT(ctx, pat, hashSHA256(plain)); err != nil {
		return nil, fmt.Errorf("create PAT: %w", err)
	}
	return &user.CreatePATResponse{Token: *pat, PlainToken: plain}, nil
}

// GetUser fetches a user by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every user (admin-only at the HTTP boundary).
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateUser applies req to the user identified by id.
func (s *AuthService) UpdateUser(ctx context.Context, id string, req user.UpdateRequest) (*user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if req.DisplayName != nil {
		u.DisplayName = *req.DisplayName
	}
	if req.IsAdmin != nil {
		u.IsAdmin = *req.IsAdmin
	}
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// DeleteUser removes a user and every refresh token/PAT belonging to them.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteRefreshTokensByUser(ctx, id); err != nil {
		slog.Warn("failed to clear refresh tokens before user delete", "user_id", id, "error", err)
	}
	return s.store.DeleteUser(ctx, id)
}

// ListPATs returns the personal access tokens belonging to userID.
func (s *AuthService) ListPATs(ctx context.Context, userID string) ([]user.PersonalAccessToken, error) {
	return s.store.ListPATsByUser(ctx, userID)
}

// RevokePAT revokes a personal access token by id.
func (s *AuthService) RevokePAT(ctx context.Context, id string) error {
	return s.store.RevokePAT(ctx, id)
}

// ChangePassword verifies the old password, enforces strength, and
// updates the user's hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req user.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", domain.ErrUnauthorized)
	}
	if err := s.checkPasswordStrength(req.NewPassword, u.Username, u.Email); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// checkPasswordStrength enforces the structural complexity check plus a
// zxcvbn score floor (spec §4.11's strength requirements beyond the
// cheap structural check in user.ValidatePasswordComplexity).
func (s *AuthService) checkPasswordStrength(password string, userInputs ...string) error {
	if err := user.ValidatePasswordComplexity(password); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	result := zxcvbn.PasswordStrength(password, userInputs)
	if result.Score < s.cfg.MinPasswordStrength {
		return fmt.Errorf("%w: password is too weak", domain.ErrBadRequest)
	}
	return nil
}

// BootstrapAdmin creates the configured admin account on first run if no
// users exist yet.
func (s *AuthService) BootstrapAdmin(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if s.cfg.AdminUsername == "" || s.cfg.AdminPassword == "" {
		slog.Info("no admin credentials configured, skipping bootstrap")
		return nil
	}

	_, err = s.Register(ctx, &user.CreateRequest{
		Username: s.cfg.AdminUsername,
		Email:    s.cfg.AdminEmail,
		Password: s.cfg.AdminPassword,
		IsAdmin:  true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	slog.Info("bootstrapped admin user", "username", s.cfg.AdminUsername)
	return nil
}

// StartTokenCleanup periodically purges expired revoked-token entries.
func (s *AuthService) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.PurgeExpiredTokens(ctx)
				if err != nil {
					slog.Warn("failed to purge expired tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired revoked tokens", "count", n)
				}
			}
		}
	}()
}

// --- JWT implementation (HS256 with stdlib, spec §4.11) ---

var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := time.Now()
	claims := user.TokenClaims{
		JTI:      uuid.NewString(),
		UserID:   u.ID,
		Role:     u.Role(),
		IssuedAt: now.Unix(),
		Expiry:   now.Add(s.cfg.AccessTokenTTL).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	payloadB64 := base64URLEncode(payload)
	signingInput := jwtHeader + "." + payloadB64

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

// verifyJWT validates signature, format, and expiry, and requires sub to
// decode to a non-empty user id (spec §4.11: "non-string sub, non-integer
// sub" are named for the original's numeric ids; AgBlogger's sub is a
// UUID string, so the equivalent failure here is an empty sub).
func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("missing subject")
	}
	if time.Now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	return &claims, nil
}

// CompareCSRFToken performs a constant-time comparison of the header
// value against the session's stored CSRF token (spec §4.11).
func CompareCSRFToken(header, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(header), []byte(stored)) == 1
}

// --- Helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
