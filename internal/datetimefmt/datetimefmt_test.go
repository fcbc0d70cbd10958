package datetimefmt

import (
	"testing"
	"time"
)

func TestParseFormatRoundTrip(t *testing.T) {
	site := NewSite("UTC")
	in := "2024-03-15 10:30:00.123456+0000"
	parsed, err := site.Parse(in)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", in, err)
	}
	if got := Format(parsed); got != in {
		t.Fatalf("Format(Parse(%q)) = %q, want %q", in, got, in)
	}
}

func TestParseLaxShapes(t *testing.T) {
	site := NewSite("UTC")
	cases := []string{
		"2024-03-15",
		"2024-03-15T10:30",
		"2024-03-15 10:30:00",
		"2024-03-15T10:30:00Z",
	}
	for _, c := range cases {
		if _, err := site.Parse(c); err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", c, err)
		}
	}
}

func TestParseNaiveUsesSiteTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	site := Site{Location: loc}
	parsed, err := site.Parse("2024-03-15 10:30:00")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if parsed.Location().String() != loc.String() {
		t.Fatalf("expected location %s, got %s", loc, parsed.Location())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	site := NewSite("UTC")
	if _, err := site.Parse("not a date at all ???"); err == nil {
		t.Fatal("expected error for unparseable input")
	}
}

func TestNewSiteFallsBackToUTC(t *testing.T) {
	site := NewSite("Not/A_Zone")
	if site.Location != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", site.Location)
	}
}
