package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/label"
	"github.com/agblogger/agblogger/internal/domain/post"
	"github.com/agblogger/agblogger/internal/port/database"
)

// Store implements database.Store using modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ database.Store = (*Store)(nil)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// --- Posts cache (spec §3, §4.9) ---

func (s *Store) UpsertPost(ctx context.Context, p *post.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.FilePath, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO posts_cache (file_path, title, author, created_at, modified_at, is_draft, content_hash, excerpt, rendered_html, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			title=excluded.title, author=excluded.author, created_at=excluded.created_at,
			modified_at=excluded.modified_at, is_draft=excluded.is_draft, content_hash=excluded.content_hash,
			excerpt=excluded.excerpt, rendered_html=excluded.rendered_html, body=excluded.body`,
		p.FilePath, p.Title, p.Author, formatTime(p.CreatedAt), formatTime(p.ModifiedAt),
		boolToInt(p.IsDraft), p.ContentHash, p.Excerpt, p.RenderedHTML, p.Body)
	if err != nil {
		return fmt.Errorf("upsert post %s: %w", p.FilePath, err)
	}
	_ = res

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM posts_cache WHERE file_path = ?`, p.FilePath).Scan(&id); err != nil {
		return fmt.Errorf("upsert post %s: resolve id: %w", p.FilePath, err)
	}

	if err := reindexFTS(ctx, tx, id, p.Title, p.Excerpt, p.Body); err != nil {
		return fmt.Errorf("upsert post %s: fts: %w", p.FilePath, err)
	}

	if err := setPostLabelsTx(ctx, tx, p.FilePath, p.Labels); err != nil {
		return fmt.Errorf("upsert post %s: labels: %w", p.FilePath, err)
	}

	return tx.Commit()
}

// reindexFTS performs the paired delete+insert that keeps posts_fts in
// sync with posts_cache for a single row (spec §4.9 "incremental
// maintenance ... paired FTS delete+insert").
func reindexFTS(ctx context.Context, tx *sql.Tx, id int64, title, excerpt, body string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts_fts WHERE rowid = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO posts_fts (rowid, title, excerpt, body) VALUES (?, ?, ?, ?)`, id, title, excerpt, body)
	return err
}

func setPostLabelsTx(ctx context.Context, tx *sql.Tx, filePath string, labelIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_labels_cache WHERE file_path = ?`, filePath); err != nil {
		return err
	}
	for _, id := range labelIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO labels_cache (id, names_json, parents_json, is_implicit)
			VALUES (?, '[]', '[]', 1)
			ON CONFLICT(id) DO NOTHING`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO post_labels_cache (file_path, label_id) VALUES (?, ?)`, filePath, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SetPostLabels(ctx context.Context, filePath string, labelIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set post labels %s: %w", filePath, err)
	}
	defer tx.Rollback()
	if err := setPostLabelsTx(ctx, tx, filePath, labelIDs); err != nil {
		return fmt.Errorf("set post labels %s: %w", filePath, err)
	}
	return tx.Commit()
}

func (s *Store) GetPost(ctx context.Context, filePath string) (*post.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, title, author, created_at, modified_at, is_draft, content_hash, excerpt, rendered_html, body
		FROM posts_cache WHERE file_path = ?`, filePath)

	p, id, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get post %s: %w", filePath, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get post %s: %w", filePath, err)
	}
	labels, err := s.labelsForPost(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", filePath, err)
	}
	p.Labels = labels
	return &p, nil
}

func (s *Store) labelsForPost(ctx context.Context, postID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label_id FROM post_labels_cache WHERE file_path = (SELECT file_path FROM posts_cache WHERE id = ?) ORDER BY label_id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) DeletePost(ctx context.Context, filePath string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts_cache WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", filePath, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete post %s: %w", filePath, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAllPostPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM posts_cache`)
	if err != nil {
		return nil, fmt.Errorf("list all post paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPosts(ctx context.Context, filter post.ListFilter) ([]post.Post, int, error) {
	return s.queryPosts(ctx, filter, "")
}

func (s *Store) SearchPosts(ctx context.Context, query string, filter post.ListFilter) ([]post.Post, int, error) {
	return s.queryPosts(ctx, filter, query)
}

// queryPosts builds and runs a single filtered, paginated posts query.
// ftsQuery, when non-empty, joins against posts_fts via MATCH; filter
// fields compose additional WHERE clauses (spec §6 GET /posts params).
func (s *Store) queryPosts(ctx context.Context, filter post.ListFilter, ftsQuery string) ([]post.Post, int, error) {
	var (
		conds []string
		args  []any
	)

	from := "posts_cache pc"
	if ftsQuery != "" {
		from = "posts_cache pc JOIN posts_fts f ON f.rowid = pc.id"
		conds = append(conds, "posts_fts MATCH ?")
		args = append(args, ftsQuery)
	}
	if filter.Author != "" {
		conds = append(conds, "pc.author = ?")
		args = append(args, filter.Author)
	}
	if filter.Draft != nil {
		conds = append(conds, "pc.is_draft = ?")
		args = append(args, boolToInt(*filter.Draft))
	}
	if filter.From != nil {
		conds = append(conds, "pc.created_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "pc.created_at <= ?")
		args = append(args, formatTime(*filter.To))
	}

	labelIDs := filter.Labels
	if filter.Label != "" {
		labelIDs = append(labelIDs, filter.Label)
	}
	for _, lid := range labelIDs {
		conds = append(conds, "pc.file_path IN (SELECT file_path FROM post_labels_cache WHERE label_id = ?)")
		args = append(args, lid)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", from, where)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	sortCol := "pc.created_at"
	switch filter.Sort {
	case "modified_at":
		sortCol = "pc.modified_at"
	case "title":
		sortCol = "pc.title"
	}
	order := "DESC"
	if filter.Order == "asc" {
		order = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	listQuery := fmt.Sprintf(
		"SELECT pc.id, pc.file_path, pc.title, pc.author, pc.created_at, pc.modified_at, pc.is_draft, pc.content_hash, pc.excerpt, pc.rendered_html, pc.body FROM %s %s ORDER BY %s %s LIMIT ? OFFSET ?",
		from, where, sortCol, order,
	)
	queryArgs := append(append([]any{}, args...), limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []post.Post
	for rows.Next() {
		p, id, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		p.Labels, err = s.labelsForPost(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPost(row scannable) (post.Post, int64, error) {
	var p post.Post
	var id int64
	var createdAt, modifiedAt string
	var isDraft int
	err := row.Scan(&id, &p.FilePath, &p.Title, &p.Author, &createdAt, &modifiedAt, &isDraft, &p.ContentHash, &p.Excerpt, &p.RenderedHTML, &p.Body)
	if err != nil {
		return p, 0, err
	}
	p.IsDraft = isDraft != 0
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, 0, fmt.Errorf("parse created_at: %w", err)
	}
	if p.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return p, 0, fmt.Errorf("parse modified_at: %w", err)
	}
	return p, id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Labels (spec §3, §4.8) ---

func (s *Store) UpsertLabel(ctx context.Context, l *label.Label) error {
	namesJSON, err := json.Marshal(l.Names)
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", l.ID, err)
	}
	parentsJSON, err := json.Marshal(l.Parents)
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", l.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO labels_cache (id, names_json, parents_json, is_implicit) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET names_json=excluded.names_json, parents_json=excluded.parents_json, is_implicit=excluded.is_implicit`,
		l.ID, string(namesJSON), string(parentsJSON), boolToInt(l.IsImplicit))
	if err != nil {
		return fmt.Errorf("upsert label %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) GetLabel(ctx context.Context, id string) (*label.Label, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, names_json, parents_json, is_implicit FROM labels_cache WHERE id = ?`, id)
	l, err := scanLabel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get label %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get label %s: %w", id, err)
	}
	return &l, nil
}

func (s *Store) ResolveLabelByName(ctx context.Context, name string) (*label.Label, error) {
	if l, err := s.GetLabel(ctx, name); err == nil {
		return l, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, names_json, parents_json, is_implicit FROM labels_cache`)
	if err != nil {
		return nil, fmt.Errorf("resolve label by name %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		for _, n := range l.Names {
			if strings.EqualFold(n, name) {
				return &l, nil
			}
		}
	}
	return nil, fmt.Errorf("resolve label by name %s: %w", name, domain.ErrNotFound)
}

func (s *Store) ListLabels(ctx context.Context) ([]label.Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, names_json, parents_json, is_implicit FROM labels_cache ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()
	var out []label.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLabel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM labels_cache WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete label %s: %w", id, domain.ErrNotFound)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, names_json, parents_json, is_implicit FROM labels_cache`)
	if err != nil {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	var affected []label.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			rows.Close()
			return err
		}
		affected = append(affected, l)
	}
	rows.Close()

	for _, l := range affected {
		filtered := l.Parents[:0]
		changed := false
		for _, p := range l.Parents {
			if p == id {
				changed = true
				continue
			}
			filtered = append(filtered, p)
		}
		if !changed {
			continue
		}
		parentsJSON, err := json.Marshal(filtered)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE labels_cache SET parents_json = ? WHERE id = ?`, string(parentsJSON), l.ID); err != nil {
			return fmt.Errorf("delete label %s: update referencing label %s: %w", id, l.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Ancestors(ctx context.Context, id string) ([]string, error) {
	return s.closure(ctx, id, true)
}

func (s *Store) Descendants(ctx context.Context, id string) ([]string, error) {
	return s.closure(ctx, id, false)
}

// closure computes a transitive closure over the parent relation (spec
// §4.8) via a recursive CTE: upward for ancestors, downward (reversing
// the edge direction) for descendants.
func (s *Store) closure(ctx context.Context, id string, ancestors bool) ([]string, error) {
	all, err := s.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("closure of %s: %w", id, err)
	}
	parentsOf := make(map[string][]string, len(all))
	childrenOf := make(map[string][]string, len(all))
	for _, l := range all {
		parentsOf[l.ID] = l.Parents
		for _, p := range l.Parents {
			childrenOf[p] = append(childrenOf[p], l.ID)
		}
	}
	next := parentsOf
	if !ancestors {
		next = childrenOf
	}

	visited := map[string]bool{}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if !visited[n] {
				visited[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	return out, nil
}

func (s *Store) PruneUnreferencedImplicitLabels(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM labels_cache
		WHERE is_implicit = 1
		AND id NOT IN (SELECT DISTINCT label_id FROM post_labels_cache)`)
	if err != nil {
		return fmt.Errorf("prune unreferenced implicit labels: %w", err)
	}
	return nil
}

func scanLabel(row scannable) (label.Label, error) {
	var l label.Label
	var namesJSON, parentsJSON string
	var isImplicit int
	if err := row.Scan(&l.ID, &namesJSON, &parentsJSON, &isImplicit); err != nil {
		return l, err
	}
	if err := json.Unmarshal([]byte(namesJSON), &l.Names); err != nil {
		return l, fmt.Errorf("unmarshal names: %w", err)
	}
	if err := json.Unmarshal([]byte(parentsJSON), &l.Parents); err != nil {
		return l, fmt.Errorf("unmarshal parents: %w", err)
	}
	l.IsImplicit = isImplicit != 0
	return l, nil
}
