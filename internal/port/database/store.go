// Package database defines the database store port (interface) backing
// the Cache Materializer (spec §4.9) and Authentication & Sessions
// (spec §4.11). It is implemented by internal/adapter/sqlite.
package database

import (
	"context"
	"time"

	"github.com/agblogger/agblogger/internal/domain/label"
	"github.com/agblogger/agblogger/internal/domain/post"
	"github.com/agblogger/agblogger/internal/domain/user"
)

// Store is the port interface for all cache/credential persistence.
type Store interface {
	// Posts cache (spec §3, §4.9)
	UpsertPost(ctx context.Context, p *post.Post) error
	GetPost(ctx context.Context, filePath string) (*post.Post, error)
	DeletePost(ctx context.Context, filePath string) error
	ListPosts(ctx context.Context, filter post.ListFilter) ([]post.Post, int, error)
	SearchPosts(ctx context.Context, query string, filter post.ListFilter) ([]post.Post, int, error)
	ListAllPostPaths(ctx context.Context) ([]string, error)
	SetPostLabels(ctx context.Context, filePath string, labelIDs []string) error

	// Labels (spec §3, §4.8)
	UpsertLabel(ctx context.Context, l *label.Label) error
	GetLabel(ctx context.Context, id string) (*label.Label, error)
	ResolveLabelByName(ctx context.Context, name string) (*label.Label, error)
	ListLabels(ctx context.Context) ([]label.Label, error)
	DeleteLabel(ctx context.Context, id string) error
	Ancestors(ctx context.Context, id string) ([]string, error)
	Descendants(ctx context.Context, id string) ([]string, error)
	PruneUnreferencedImplicitLabels(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)

	// Refresh Tokens
	CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
	RotateRefreshToken(ctx context.Context, oldID string, newRT *user.RefreshToken) error

	// Token Revocation
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpiredTokens(ctx context.Context) (int64, error)

	// Invite Codes
	CreateInviteCode(ctx context.Context, inv *user.InviteCode, codeHash string) error
	GetInviteCodeByHash(ctx context.Context, codeHash string) (*user.InviteCode, error)
	MarkInviteCodeUsed(ctx context.Context, codeHash, usedBy string) error

	// Personal Access Tokens
	CreatePAT(ctx context.Context, pat *user.PersonalAccessToken, tokenHash string) error
	GetPATByHash(ctx context.Context, tokenHash string) (*user.PersonalAccessToken, error)
	ListPATsByUser(ctx context.Context, userID string) ([]user.PersonalAccessToken, error)
	TouchPAT(ctx context.Context, id string) error
	RevokePAT(ctx context.Context, id string) error

	// Social Accounts
	UpsertSocialAccount(ctx context.Context, sa *user.SocialAccount) error
	GetSocialAccount(ctx context.Context, userID, platform string, accountName *string) (*user.SocialAccount, error)
	ListSocialAccountsByUser(ctx context.Context, userID string) ([]user.SocialAccount, error)
	DeleteSocialAccount(ctx context.Context, id string) error

	// Sync manifest (server side of spec §4.10.1)
	ReplaceServerManifest(ctx context.Context, entries []ManifestRow) error
	ServerManifest(ctx context.Context) ([]ManifestRow, error)
}

// ManifestRow is the server's persisted view of a sync manifest entry.
type ManifestRow struct {
	FilePath string
	SHA256   string
	Size     int64
	MTime    time.Time
}
