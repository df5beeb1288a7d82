package language_test

import (
	"testing"

	"docket/internal/language"
)

func TestToEngineCode(t *testing.T) {
	cases := map[string]string{
		"he":      "heb",
		"heb":     "heb",
		"hebrew":  "heb",
		"EN":      "eng",
		"fre":     "fra",
		"zho":     "chi_sim",
		"xyz":     "xyz", // unknown 3-letter packs pass through
		"x":       "",
		"":        "",
		" eng ":   "eng",
		"english": "eng",
	}
	for input, want := range cases {
		if got := language.ToEngineCode(input); got != want {
			t.Errorf("ToEngineCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseSetPreservesOrderAndDedupes(t *testing.T) {
	got := language.ParseSet("heb+eng+he+bogus!")
	if len(got) != 2 || got[0] != "heb" || got[1] != "eng" {
		t.Fatalf("ParseSet = %v", got)
	}
}

func TestJoinSet(t *testing.T) {
	if got := language.JoinSet([]string{"hebrew", "en"}); got != "heb+eng" {
		t.Fatalf("JoinSet = %q", got)
	}
	if got := language.JoinSet(nil); got != "" {
		t.Fatalf("JoinSet(nil) = %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := language.DisplayName("heb"); got != "Hebrew" {
		t.Fatalf("DisplayName(heb) = %q", got)
	}
	if got := language.DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(empty) = %q", got)
	}
}
