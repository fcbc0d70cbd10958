// Package post defines the Post domain model (spec §3): a markdown file
// under posts/, its front-matter-derived metadata, and the requests the
// HTTP boundary and sync engine build against it.
package post

import "time"

// Post is a markdown file under posts/ (any depth).
type Post struct {
	FilePath     string    `json:"file_path"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
	IsDraft      bool      `json:"is_draft"`
	Labels       []string  `json:"labels"`
	ContentHash  string    `json:"content_hash"`
	Excerpt      string    `json:"excerpt"`
	RenderedHTML string    `json:"rendered_html,omitempty"`
	Body         string    `json:"-"`
}

// FrontMatter is the recognized, round-trip-preserving header shape of a
// post's YAML front matter (spec §4.2). Unknown is every field the codec
// didn't recognize, preserved verbatim through write.
type FrontMatter struct {
	CreatedAt  *time.Time
	ModifiedAt *time.Time
	Author     string
	Labels     []string
	Draft      bool
	Unknown    map[string]any
}

// CreateRequest is the input for creating a new post via the HTTP boundary.
type CreateRequest struct {
	FilePath string   `json:"file_path"`
	Body     string   `json:"body"`
	Author   string   `json:"author,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Draft    bool     `json:"draft,omitempty"`
}

// UpdateRequest is the input for updating an existing post.
type UpdateRequest struct {
	Body   string   `json:"body"`
	Author string   `json:"author,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Draft  *bool    `json:"draft,omitempty"`
}

// ListFilter captures the GET /posts query parameters (spec §6).
type ListFilter struct {
	Label   string
	Labels  []string
	Author  string
	From    *time.Time
	To      *time.Time
	Query   string
	Sort    string // created_at | modified_at | title
	Order   string // asc | desc
	Draft   *bool
	Limit   int
	Offset  int
}

// MaxMarkdownBytes is the configurable guardrail default of spec §4.4
// (10 MiB); Content.Config overrides this per deployment.
const MaxMarkdownBytes = 10 << 20
