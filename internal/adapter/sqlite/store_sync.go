package sqlite

import (
	"context"
	"fmt"

	"github.com/agblogger/agblogger/internal/port/database"
)

// ReplaceServerManifest atomically replaces the server's persisted view
// of the content tree (spec §4.10.1), used after a successful COMMIT or
// a cold-start reconciliation scan.
func (s *Store) ReplaceServerManifest(ctx context.Context, entries []database.ManifestRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace server manifest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_manifest`); err != nil {
		return fmt.Errorf("replace server manifest: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_manifest (file_path, sha256, size, mtime) VALUES (?, ?, ?, ?)`,
			e.FilePath, e.SHA256, e.Size, formatTime(e.MTime)); err != nil {
			return fmt.Errorf("replace server manifest: insert %s: %w", e.FilePath, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ServerManifest(ctx context.Context) ([]database.ManifestRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path, sha256, size, mtime FROM sync_manifest`)
	if err != nil {
		return nil, fmt.Errorf("server manifest: %w", err)
	}
	defer rows.Close()

	var out []database.ManifestRow
	for rows.Next() {
		var e database.ManifestRow
		var mtime string
		if err := rows.Scan(&e.FilePath, &e.SHA256, &e.Size, &mtime); err != nil {
			return nil, err
		}
		if e.MTime, err = parseTime(mtime); err != nil {
			return nil, fmt.Errorf("parse mtime: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
