// Package contentstore implements the filesystem operations over the
// content directory: scanning posts, reading/writing single files
// atomically, deletion, path-safety resolution, and the manifest walk
// backing sync (spec §4.4).
package contentstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/frontmatter"
)

// Store exposes the content directory's filesystem operations.
type Store struct {
	root             string
	maxMarkdownBytes int64
}

// New returns a Store rooted at absRoot (must already be an absolute,
// cleaned path).
func New(absRoot string, maxMarkdownBytes int64) *Store {
	return &Store{root: absRoot, maxMarkdownBytes: maxMarkdownBytes}
}

// Root returns the content directory's absolute path.
func (s *Store) Root() string { return s.root }

// ResolveSafe canonicalizes userPath and enforces that the result is
// contained within the content root, rejecting traversal (spec §4.4).
// Applied uniformly to every endpoint that accepts a filesystem-relative
// path.
func (s *Store) ResolveSafe(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrUnsafePath)
	}
	if strings.ContainsRune(userPath, 0) {
		return "", fmt.Errorf("%w: NUL byte in path", domain.ErrUnsafePath)
	}

	joined := filepath.Join(s.root, userPath)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnsafePath, err)
	}
	abs = filepath.Clean(abs)

	rootWithSep := s.root + string(filepath.Separator)
	if abs != s.root && !strings.HasPrefix(abs, rootWithSep) {
		return "", fmt.Errorf("%w: %q escapes content root", domain.ErrUnsafePath, userPath)
	}

	// Reject traversal via symlinks: resolve an existing parent and
	// re-check containment.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		resolved = filepath.Clean(resolved)
		if resolved != s.root && !strings.HasPrefix(resolved, rootWithSep) {
			return "", fmt.Errorf("%w: %q escapes content root via symlink", domain.ErrUnsafePath, userPath)
		}
	}

	return abs, nil
}

// ScannedPost is one parsed posts/**.md file.
type ScannedPost struct {
	RelPath string
	Doc      frontmatter.Document
	Hash     string
	Size     int64
	ModTime  time.Time
}

// ScanPosts walks posts/**.md, producing parsed posts. Individual file
// failures are logged and skipped; directory-level permission errors
// skip that subtree (spec §4.4).
func (s *Store) ScanPosts() ([]ScannedPost, error) {
	postsRoot := filepath.Join(s.root, "posts")
	var out []ScannedPost

	err := filepath.WalkDir(postsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				slog.Warn("skipping unreadable subtree", "path", path, "error", err)
				return fs.SkipDir
			}
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != postsRoot {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("skipping post, stat failed", "path", path, "error", err)
			return nil
		}
		raw, err := os.ReadFile(path) //nolint:gosec // path is produced by WalkDir under postsRoot
		if err != nil {
			slog.Warn("skipping post, read failed", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			slog.Warn("skipping post, rel path failed", "path", path, "error", err)
			return nil
		}

		out = append(out, ScannedPost{
			RelPath: filepath.ToSlash(rel),
			Doc:     frontmatter.Split(raw),
			Hash:    hashBytes(raw),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan posts: %v", domain.ErrStorageFailure, err)
	}
	return out, nil
}

// ReadPost reads a single file's raw bytes by content-relative path.
func (s *Store) ReadPost(relPath string) ([]byte, error) {
	abs, err := s.ResolveSafe(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs) //nolint:gosec // abs is validated by ResolveSafe
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, relPath)
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStorageFailure, relPath, err)
	}
	return data, nil
}

// WritePost atomically writes raw bytes to a content-relative path,
// creating parent directories as needed, enforcing the size and NUL
// guardrails (spec §4.4).
func (s *Store) WritePost(relPath string, raw []byte) error {
	if int64(len(raw)) > s.maxMarkdownBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrInputTooLarge, len(raw), s.maxMarkdownBytes)
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return fmt.Errorf("%w: NUL byte in content", domain.ErrBadRequest)
	}

	abs, err := s.ResolveSafe(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", domain.ErrStorageFailure, err)
	}
	return atomicWrite(abs, raw)
}

// DeletePost removes the file and, if a sibling asset directory shares
// its base name (the images/attachments colocation pattern), that
// directory too (spec §4.4).
func (s *Store) DeletePost(relPath string) error {
	abs, err := s.ResolveSafe(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, relPath)
		}
		return fmt.Errorf("%w: delete %s: %v", domain.ErrStorageFailure, relPath, err)
	}

	siblingDir := strings.TrimSuffix(abs, filepath.Ext(abs))
	if info, err := os.Stat(siblingDir); err == nil && info.IsDir() {
		if err := os.RemoveAll(siblingDir); err != nil {
			slog.Warn("failed to remove sibling asset directory", "dir", siblingDir, "error", err)
		}
	}
	return nil
}

// ManifestEntry is one row of scan_all's output (spec §4.4, §4.10.1).
type ManifestEntry struct {
	RelPath string
	SHA256  string
	Size    int64
	MTime   time.Time
}

// ScanAll walks every file under content/ excluding dot-files and the
// .git/ subtree, yielding the manifest used by sync (spec §4.4,
// §4.10.6).
func (s *Store) ScanAll() ([]ManifestEntry, error) {
	var out []ManifestEntry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return fs.SkipDir
			}
			return err
		}
		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		raw, err := os.ReadFile(path) //nolint:gosec // path produced by WalkDir under s.root
		if err != nil {
			slog.Warn("skipping manifest entry, read failed", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		out = append(out, ManifestEntry{
			RelPath: filepath.ToSlash(rel),
			SHA256:  hashBytes(raw),
			Size:    info.Size(),
			MTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan all: %v", domain.ErrStorageFailure, err)
	}
	return out, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// atomicWrite writes data to a unique temp file in dst's directory,
// fsyncs it, then renames it over dst (spec §4.3's idiom, reused here
// per §4.4 "single-file operations with atomic writes").
func atomicWrite(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", domain.ErrStorageFailure, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp: %v", domain.ErrStorageFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: fsync: %v", domain.ErrStorageFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp: %v", domain.ErrStorageFailure, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("%w: rename: %v", domain.ErrStorageFailure, err)
	}
	return nil
}
