// Package frontmatter splits a markdown file into its YAML header and
// body, and reassembles the two on write (spec §4.2). Unknown header
// fields survive a read-then-write round trip untouched.
package frontmatter

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/agblogger/agblogger/internal/datetimefmt"
)

// recognizedKeys are the fields AgBlogger interprets itself; everything
// else in the header map is carried through verbatim (spec §4.2).
var recognizedKeys = map[string]bool{
	"created_at":  true,
	"modified_at": true,
	"author":      true,
	"labels":      true,
	"draft":       true,
}

// Document is the parsed result of splitting a post file.
type Document struct {
	CreatedAt  *string // canonical timestamp string, if present
	ModifiedAt *string
	Author     string
	Labels     []string
	Draft      bool
	Unknown    map[string]any
	Body       string
}

// Split parses raw file bytes into a Document. A missing or malformed
// front-matter block yields an empty header and the whole file as body
// (spec §4.2), never an error.
func Split(raw []byte) Document {
	var header map[string]any
	rest, err := frontmatter.Parse(bytes.NewReader(raw), &header)
	if err != nil || header == nil {
		return Document{Unknown: map[string]any{}, Body: string(raw)}
	}

	doc := Document{Unknown: map[string]any{}, Body: string(rest)}
	for k, v := range header {
		switch k {
		case "created_at":
			if s, ok := v.(string); ok {
				doc.CreatedAt = &s
			}
		case "modified_at":
			if s, ok := v.(string); ok {
				doc.ModifiedAt = &s
			}
		case "author":
			if s, ok := v.(string); ok {
				doc.Author = s
			}
		case "labels":
			doc.Labels = parseLabels(v)
		case "draft":
			if b, ok := v.(bool); ok {
				doc.Draft = b
			}
		default:
			doc.Unknown[k] = v
		}
	}
	return doc
}

// parseLabels accepts either `#id` or bare `id` entries (spec §4.2,
// §6 "list of #id").
func parseLabels(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	labels := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if len(s) > 0 && s[0] == '#' {
			s = s[1:]
		}
		labels = append(labels, s)
	}
	return labels
}

// Join reassembles a front-matter header and body into file bytes,
// normalizing timestamps and defaulting author; unknown fields are
// preserved verbatim (spec §4.2 "serialization always normalizes
// timestamps"). site resolves the offset for any naive timestamp string
// that needs reparsing.
func Join(doc Document, defaultAuthor string, site datetimefmt.Site) ([]byte, error) {
	header := make(map[string]any, len(doc.Unknown)+5)
	for k, v := range doc.Unknown {
		header[k] = v
	}

	author := doc.Author
	if author == "" {
		author = defaultAuthor
	}
	header["author"] = author
	header["draft"] = doc.Draft

	labels := make([]string, 0, len(doc.Labels))
	for _, l := range doc.Labels {
		labels = append(labels, "#"+l)
	}
	if len(labels) > 0 {
		header["labels"] = labels
	}

	if doc.CreatedAt != nil {
		header["created_at"] = canonicalize(site, "created_at", *doc.CreatedAt)
	}
	if doc.ModifiedAt != nil {
		header["modified_at"] = canonicalize(site, "modified_at", *doc.ModifiedAt)
	}

	yamlBytes, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n")
	buf.WriteString(doc.Body)
	return buf.Bytes(), nil
}

// HasRecognizedKey reports whether k is one of the fields AgBlogger
// interprets, as opposed to passing it through as Unknown.
func HasRecognizedKey(k string) bool {
	return recognizedKeys[k]
}

// canonicalize reparses raw under site's timezone and reformats it into
// the canonical layout (spec §4.1, §4.2 "canonicalized on write"). An
// unparseable value is logged and passed through verbatim rather than
// dropped, since Join must never fail on a pre-existing header.
func canonicalize(site datetimefmt.Site, field, raw string) string {
	t, err := site.Parse(raw)
	if err != nil {
		slog.Warn("front matter: timestamp did not canonicalize, writing verbatim", "field", field, "value", raw, "error", err)
		return raw
	}
	return datetimefmt.Format(t)
}
