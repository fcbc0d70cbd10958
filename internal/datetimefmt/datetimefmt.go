// Package datetimefmt parses and formats the canonical AgBlogger
// timestamp (spec §4.1): microsecond precision with an explicit UTC
// offset. Lax parsing covers the common ISO-8601 shapes cheaply before
// falling back to a looser natural-language parser for genuinely
// irregular input.
package datetimefmt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// CanonicalLayout is the strict output format: YYYY-MM-DD
// HH:MM:SS.ffffff±HHMM.
const CanonicalLayout = "2006-01-02 15:04:05.000000-0700"

// ErrBadFormat is returned when a timestamp cannot be parsed under any
// accepted layout.
var ErrBadFormat = errors.New("datetimefmt: unparseable timestamp")

// laxLayouts are tried, in order, before falling back to the loose
// natural-language parser. They cover ISO-8601 with/without "T", with
// any subset of time fields, with or without an offset.
var laxLayouts = []string{
	CanonicalLayout,
	"2006-01-02T15:04:05.000000-07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Site carries the configured site timezone used as the default offset
// for naive input (spec §4.1 "missing offset defaults to the site's
// configured IANA timezone").
type Site struct {
	Location *time.Location
}

// NewSite validates tz against the IANA time-zone database, falling
// back to UTC with a logged warning on failure (spec §4.1, §4.3).
func NewSite(tz string) Site {
	if tz == "" {
		return Site{Location: time.UTC}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("invalid site timezone, falling back to UTC", "timezone", tz, "error", err)
		return Site{Location: time.UTC}
	}
	return Site{Location: loc}
}

// Parse parses s under the accepted lax grammar, returning an
// offset-aware instant. Naive datetimes (no offset present) are
// interpreted in the site's configured timezone.
func (s Site) Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrBadFormat)
	}

	for _, layout := range laxLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if !hasOffset(layout) {
				t = reinterpretIn(t, s.Location)
			}
			return t, nil
		}
	}

	parsed, err := dateparser.Parse(&dateparser.Configuration{
		DefaultTimezone: s.Location,
	}, raw)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadFormat, raw)
	}
	t := parsed.Time
	if t.Location() == time.UTC && !strings.Contains(raw, "Z") {
		t = reinterpretIn(t, s.Location)
	}
	return t, nil
}

// Format renders t in the canonical layout with microsecond precision.
func Format(t time.Time) string {
	return t.Format(CanonicalLayout)
}

// reinterpretIn takes the naive wall-clock fields of t and reattaches
// them to loc, rather than converting the instant (spec §4.1: "any
// naïve datetime ... is treated as site-local").
func reinterpretIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func hasOffset(layout string) bool {
	return strings.Contains(layout, "-0700") || strings.Contains(layout, "Z07:00") || strings.Contains(layout, "-07:00")
}
