package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/user"
)

// --- Refresh Tokens ---

func (s *Store) CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rt.ID, rt.UserID, rt.TokenHash, formatTime(rt.ExpiresAt), formatTime(rt.CreatedAt))
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	var rt user.RefreshToken
	var expiresAt, createdAt string
	err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get refresh token: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if rt.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if rt.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &rt, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete refresh token %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete refresh token %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete refresh tokens for user %s: %w", userID, err)
	}
	return nil
}

// RotateRefreshToken atomically replaces oldID with newRT, so a racing
// reuse of a rotated-out token is rejected rather than silently
// accepted (spec §4.11's rotating refresh token contract).
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, newRT *user.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, oldID)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rotate refresh token: %w", domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		newRT.ID, newRT.UserID, newRT.TokenHash, formatTime(newRT.ExpiresAt), formatTime(newRT.CreatedAt)); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return tx.Commit()
}

// --- Token Revocation ---

func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, revoked_at, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(jti) DO NOTHING`,
		jti, formatTime(time.Now()), formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti).Scan(&n); err != nil {
		return false, fmt.Errorf("check token revocation %s: %w", jti, err)
	}
	return n > 0, nil
}

func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return res.RowsAffected()
}

// --- Invite Codes ---

func (s *Store) CreateInviteCode(ctx context.Context, inv *user.InviteCode, codeHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invite_codes (code_hash, created_by, used_by, used_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		codeHash, inv.CreatedBy, nullableString(inv.UsedBy), nullableTimePtr(inv.UsedAt), formatTime(inv.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create invite code: %w", err)
	}
	return nil
}

func (s *Store) GetInviteCodeByHash(ctx context.Context, codeHash string) (*user.InviteCode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT created_by, used_by, used_at, expires_at FROM invite_codes WHERE code_hash = ?`, codeHash)
	var inv user.InviteCode
	var usedBy, usedAt sql.NullString
	var expiresAt string
	if err := row.Scan(&inv.CreatedBy, &usedBy, &usedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get invite code: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get invite code: %w", err)
	}
	inv.CodeHash = codeHash
	if usedBy.Valid {
		inv.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		t, err := parseTime(usedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse used_at: %w", err)
		}
		inv.UsedAt = &t
	}
	var err error
	if inv.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &inv, nil
}

func (s *Store) MarkInviteCodeUsed(ctx context.Context, codeHash, usedBy string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invite_codes SET used_by = ?, used_at = ? WHERE code_hash = ? AND used_by IS NULL`,
		usedBy, formatTime(time.Now()), codeHash)
	if err != nil {
		return fmt.Errorf("mark invite code used: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("mark invite code used: %w", domain.ErrConflict)
	}
	return nil
}

// --- Personal Access Tokens ---

func (s *Store) CreatePAT(ctx context.Context, pat *user.PersonalAccessToken, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personal_access_tokens (id, user_id, token_hash, label, created_at, last_used_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pat.ID, pat.UserID, tokenHash, pat.Label, formatTime(pat.CreatedAt),
		nullableTimePtr(pat.LastUsedAt), nullableTimePtr(pat.ExpiresAt), boolToInt(pat.Revoked))
	if err != nil {
		return fmt.Errorf("create PAT: %w", err)
	}
	return nil
}

func (s *Store) GetPATByHash(ctx context.Context, tokenHash string) (*user.PersonalAccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, label, created_at, last_used_at, expires_at, revoked
		FROM personal_access_tokens WHERE token_hash = ?`, tokenHash)
	pat, err := scanPAT(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get PAT: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get PAT: %w", err)
	}
	pat.TokenHash = tokenHash
	return &pat, nil
}

func (s *Store) ListPATsByUser(ctx context.Context, userID string) ([]user.PersonalAccessToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, label, created_at, last_used_at, expires_at, revoked
		FROM personal_access_tokens WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list PATs for user %s: %w", userID, err)
	}
	defer rows.Close()
	var out []user.PersonalAccessToken
	for rows.Next() {
		pat, err := scanPAT(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pat)
	}
	return out, rows.Err()
}

func (s *Store) TouchPAT(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch PAT %s: %w", id, err)
	}
	return nil
}

func (s *Store) RevokePAT(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE personal_access_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke PAT %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("revoke PAT %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanPAT(row scannable) (user.PersonalAccessToken, error) {
	var pat user.PersonalAccessToken
	var createdAt string
	var lastUsedAt, expiresAt sql.NullString
	var revoked int
	err := row.Scan(&pat.ID, &pat.UserID, &pat.Label, &createdAt, &lastUsedAt, &expiresAt, &revoked)
	if err != nil {
		return pat, err
	}
	pat.Revoked = revoked != 0
	if pat.CreatedAt, err = parseTime(createdAt); err != nil {
		return pat, fmt.Errorf("parse created_at: %w", err)
	}
	if lastUsedAt.Valid {
		t, err := parseTime(lastUsedAt.String)
		if err != nil {
			return pat, fmt.Errorf("parse last_used_at: %w", err)
		}
		pat.LastUsedAt = &t
	}
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return pat, fmt.Errorf("parse expires_at: %w", err)
		}
		pat.ExpiresAt = &t
	}
	return pat, nil
}

// --- Social Accounts ---

func (s *Store) UpsertSocialAccount(ctx context.Context, sa *user.SocialAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO social_accounts (id, user_id, platform, account_name, credentials_ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, platform, account_name) DO UPDATE SET
			credentials_ciphertext=excluded.credentials_ciphertext, updated_at=excluded.updated_at`,
		sa.ID, sa.UserID, sa.Platform, nullableString(sa.AccountName), sa.CredentialsCiphertext,
		formatTime(sa.CreatedAt), formatTime(sa.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert social account: %w", err)
	}
	return nil
}

func (s *Store) GetSocialAccount(ctx context.Context, userID, platform string, accountName *string) (*user.SocialAccount, error) {
	var row *sql.Row
	if accountName == nil {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, account_name, credentials_ciphertext, created_at, updated_at
			FROM social_accounts WHERE user_id = ? AND platform = ? AND account_name IS NULL`, userID, platform)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT id, account_name, credentials_ciphertext, created_at, updated_at
			FROM social_accounts WHERE user_id = ? AND platform = ? AND account_name = ?`, userID, platform, *accountName)
	}

	var sa user.SocialAccount
	var name sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&sa.ID, &name, &sa.CredentialsCiphertext, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get social account: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get social account: %w", err)
	}
	sa.UserID = userID
	sa.Platform = platform
	if name.Valid {
		sa.AccountName = &name.String
	}
	var err error
	if sa.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sa.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sa, nil
}

func (s *Store) ListSocialAccountsByUser(ctx context.Context, userID string) ([]user.SocialAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, account_name, credentials_ciphertext, created_at, updated_at
		FROM social_accounts WHERE user_id = ? ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("list social accounts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []user.SocialAccount
	for rows.Next() {
		var sa user.SocialAccount
		var name sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&sa.ID, &sa.Platform, &name, &sa.CredentialsCiphertext, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sa.UserID = userID
		if name.Valid {
			sa.AccountName = &name.String
		}
		if sa.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if sa.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSocialAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM social_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete social account %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete social account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
