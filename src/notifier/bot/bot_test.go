package bot

import (
	"strings"
	"testing"
)

func TestParseEvent(t *testing.T) {
	e := parseEvent(map[string]interface{}{
		"key":    "bounty",
		"bounty": "42",
		"slug":   "alice/fix-the-parser",
		"title":  "Fix the Parser",
		"user":   "alice",
		"time":   "1756728000",
	})

	if e.Key != "bounty" || e.Bounty != 42 || e.Slug != "alice/fix-the-parser" {
		t.Fatalf("event = %+v", e)
	}
	if e.User != "alice" || e.Time != 1756728000 {
		t.Fatalf("event = %+v", e)
	}
}

func TestParseEventIgnoresBadValues(t *testing.T) {
	e := parseEvent(map[string]interface{}{
		"key":    "assign",
		"bounty": "not-a-number",
		"time":   12345, // not the stream's string encoding
	})
	if e.Key != "assign" || e.Bounty != 0 || e.Time != 0 {
		t.Fatalf("event = %+v", e)
	}
}

func TestBuildEmbed(t *testing.T) {
	b := &Bot{frontendURL: "https://utopian.io"}

	embed := b.BuildEmbed(Event{
		Key:   "bounty",
		Slug:  "alice/fix-the-parser",
		Title: "Fix the Parser",
		User:  "alice",
		Time:  1756728000,
	})
	if embed.URL != "https://utopian.io/bounty/alice/fix-the-parser" {
		t.Fatalf("url = %q", embed.URL)
	}
	if embed.Title != "Fix the Parser" {
		t.Fatalf("title = %q", embed.Title)
	}
	if !strings.Contains(embed.Author.Name, "alice") {
		t.Fatalf("author = %q", embed.Author.Name)
	}

	assign := b.BuildEmbed(Event{Key: "assign", User: "alice", Assignee: "bob", Slug: "alice/x", Title: "X"})
	if !strings.Contains(assign.Author.Name, "bob") {
		t.Fatalf("assign header = %q", assign.Author.Name)
	}
	if assign.Color == embed.Color {
		t.Fatal("event kinds should color differently")
	}
}

func TestBuildEmbedDefaultsTimestamp(t *testing.T) {
	b := &Bot{frontendURL: "https://utopian.io"}
	embed := b.BuildEmbed(Event{Key: "proposal", User: "bob", Slug: "a/b", Title: "B"})
	if embed.Timestamp == "" {
		t.Fatal("expected a timestamp")
	}
}
