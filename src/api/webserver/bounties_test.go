package webserver

import (
	"strings"
	"testing"
)

func TestBountySlug(t *testing.T) {
	cases := map[string]string{
		"Fix the Parser":          "alice/fix-the-parser",
		"Añadir traducción":       "alice/anadir-traduccion",
		"  spaced   out  title  ": "alice/spaced-out-title",
	}
	for title, want := range cases {
		if got := bountySlug("alice", title); got != want {
			t.Fatalf("bountySlug(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestValidSteemUsername(t *testing.T) {
	valid := []string{"alice", "alice.dev", "a-b-c", "abc123", "utopian.pay"}
	for _, name := range valid {
		if !validSteemUsername(name) {
			t.Fatalf("%q should be valid", name)
		}
	}

	invalid := []string{
		"ab",        // too short
		"Alice",     // uppercase
		".alice",    // leading separator
		"alice.",    // trailing separator
		"al..ice",   // double separator
		"alice bob", // space
	}
	for _, name := range invalid {
		if validSteemUsername(name) {
			t.Fatalf("%q should be invalid", name)
		}
	}
	if validSteemUsername(strings.Repeat("a", 33)) {
		t.Fatal("33 characters should be invalid")
	}
}

func TestSanitizerStripsScripts(t *testing.T) {
	b := NewBounties(nil, nil)

	out := b.sanitizer.Sanitize(`<p>hello</p><script>alert(1)</script>`)
	if strings.Contains(out, "script") || strings.Contains(out, "alert") {
		t.Fatalf("script survived: %q", out)
	}
	if !strings.Contains(out, "<p>hello</p>") {
		t.Fatalf("paragraph stripped: %q", out)
	}

	out = b.sanitizer.Sanitize(`<a href="https://github.com/x">link</a>`)
	if !strings.Contains(out, `href="https://github.com/x"`) {
		t.Fatalf("link lost its href: %q", out)
	}
	if !strings.Contains(out, "nofollow") {
		t.Fatalf("link missing nofollow: %q", out)
	}
}

func TestDetectLang(t *testing.T) {
	b := NewBounties(nil, nil)

	if got := b.detectLang("<p>This is a bounty about fixing the markdown parser in the editor component.</p>"); got != "eng" {
		t.Fatalf("detectLang english = %q", got)
	}
	if got := b.detectLang("<p></p>"); got != "" {
		t.Fatalf("detectLang empty = %q", got)
	}
}
