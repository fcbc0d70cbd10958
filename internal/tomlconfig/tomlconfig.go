// Package tomlconfig reads and writes AgBlogger's site-level TOML files
// (`index.toml`, `labels.toml`) atomically (spec §4.3, §6).
package tomlconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// PageIDPattern is the required shape of a page id (spec §4.3, §6).
var PageIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// TimelinePageID is the special page id that denotes the built-in post
// timeline (spec §6).
const TimelinePageID = "timeline"

// Site is the `[site]` table of index.toml.
type Site struct {
	Title         string `toml:"title"`
	Description   string `toml:"description,omitempty"`
	DefaultAuthor string `toml:"default_author,omitempty"`
	Timezone      string `toml:"timezone,omitempty"`
}

// Page is one entry of index.toml's ordered `[[pages]]` array.
type Page struct {
	ID    string `toml:"id"`
	Title string `toml:"title"`
	File  string `toml:"file,omitempty"`
}

// Index is the parsed shape of index.toml.
type Index struct {
	Site  Site   `toml:"site"`
	Pages []Page `toml:"pages"`
}

// LabelEntry is one `[labels.<id>]` entry of labels.toml. Parent is
// accepted as either a single string or a list in the raw file; callers
// read Parents after normalization by ReadLabels.
type LabelEntry struct {
	Names   []string `toml:"names,omitempty"`
	Parent  string   `toml:"parent,omitempty"`
	Parents []string `toml:"parents,omitempty"`
}

// Labels is the parsed shape of labels.toml: id -> entry.
type Labels struct {
	Labels map[string]LabelEntry `toml:"labels"`
}

// DefaultIndex is returned when index.toml is absent or fails to parse
// (spec §4.3 "parse failures return defaults with a logged warning").
func DefaultIndex() Index {
	return Index{Site: Site{Title: "AgBlogger", Timezone: "UTC"}}
}

// ReadIndex reads and validates index.toml at path, dropping malformed
// page entries with a warning (spec §4.3).
func ReadIndex(path string) Index {
	var idx Index
	if _, err := toml.DecodeFile(path, &idx); err != nil {
		slog.Warn("index.toml parse failed, using defaults", "path", path, "error", err)
		return DefaultIndex()
	}
	valid := make([]Page, 0, len(idx.Pages))
	for _, p := range idx.Pages {
		if !PageIDPattern.MatchString(p.ID) {
			slog.Warn("dropping invalid page entry", "id", p.ID)
			continue
		}
		valid = append(valid, p)
	}
	idx.Pages = valid
	return idx
}

// WriteIndex atomically persists idx to path (spec §4.3: write-temp,
// fsync, rename).
func WriteIndex(path string, idx Index) error {
	return atomicWriteTOML(path, idx)
}

// NormalizedLabel is a labels.toml entry after Parent/Parents merge.
type NormalizedLabel struct {
	ID      string
	Names   []string
	Parents []string
}

// ReadLabels reads and normalizes labels.toml, merging the singular
// `parent` and plural `parents` forms (spec §6).
func ReadLabels(path string) ([]NormalizedLabel, error) {
	var raw Labels
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		slog.Warn("labels.toml parse failed, using empty set", "path", path, "error", err)
		return nil, nil
	}

	out := make([]NormalizedLabel, 0, len(raw.Labels))
	for id, entry := range raw.Labels {
		parents := append([]string{}, entry.Parents...)
		if entry.Parent != "" {
			parents = append(parents, entry.Parent)
		}
		out = append(out, NormalizedLabel{ID: id, Names: entry.Names, Parents: parents})
	}
	return out, nil
}

// WriteLabels atomically persists the given labels to path as
// `[labels.<id>]` entries (spec §4.3).
func WriteLabels(path string, labels []NormalizedLabel) error {
	raw := Labels{Labels: make(map[string]LabelEntry, len(labels))}
	for _, l := range labels {
		raw.Labels[l.ID] = LabelEntry{Names: l.Names, Parents: l.Parents}
	}
	return atomicWriteTOML(path, raw)
}

// atomicWriteTOML writes v as TOML to a temp file in path's directory,
// fsyncs it, and renames it over path (spec §4.3).
func atomicWriteTOML(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.toml")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
