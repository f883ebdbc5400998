package textutil_test

import (
	"testing"

	"speculum/internal/textutil"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Entity Extraction", "entity-extraction"},
		{"  Café -- Déjà vu!  ", "cafe-deja-vu"},
		{"already-slugged_name", "already-slugged-name"},
		{"Summary", "summary"},
		{"???", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := textutil.Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugifyMaxCutsOnHyphen(t *testing.T) {
	got := textutil.SlugifyMax("Monitoring report for the quarterly compliance review", 30)
	if len(got) > 30 {
		t.Fatalf("expected at most 30 bytes, got %d (%q)", len(got), got)
	}
	if got != "monitoring-report-for-the" {
		t.Fatalf("unexpected truncated slug %q", got)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := textutil.SanitizeToken("  Legal Review/v2 "); got != "legal_review_v2" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := textutil.SanitizeToken(""); got != "unknown" {
		t.Fatalf("expected unknown for blank, got %q", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := textutil.SanitizeFileName(` a:b/c?"d" `); got != "a-b-cd" {
		t.Fatalf("SanitizeFileName = %q", got)
	}
}
