package bots

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func writeZip(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	zw := zip.NewWriter(f)
	for member, content := range members {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatalf("zip member %s: %v", member, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", member, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	f.Close()
	return p
}

func TestRulesSource_PlainFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "rules.txt", "always be polite")

	src := NewRulesSource(p)
	if got := src.Rules(); got != "always be polite" {
		t.Errorf("unexpected rules: %q", got)
	}
}

func TestRulesSource_EmptyPath(t *testing.T) {
	src := NewRulesSource("")
	if got := src.Rules(); got != "" {
		t.Errorf("expected empty rules, got %q", got)
	}
}

// TestRulesSource_ZipPreference verifies AGENTS.md wins over README.md
// inside an archive.
func TestRulesSource_ZipPreference(t *testing.T) {
	dir := t.TempDir()
	p := writeZip(t, dir, "rules.zip", map[string]string{
		"docs/README.md": "readme text",
		"AGENTS.md":      "agents text",
	})

	src := NewRulesSource(p)
	if got := src.Rules(); got != "agents text" {
		t.Errorf("expected AGENTS.md to win, got %q", got)
	}
}

func TestRulesSource_ZipWithoutRulesFile(t *testing.T) {
	dir := t.TempDir()
	p := writeZip(t, dir, "rules.zip", map[string]string{"notes.txt": "nope"})

	src := NewRulesSource(p)
	if got := src.Rules(); got != "" {
		t.Errorf("expected empty rules for an archive without a rules file, got %q", got)
	}
}

// TestRulesSource_ReloadOnChange verifies the mtime-based cache.
func TestRulesSource_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "rules.txt", "v1")

	src := NewRulesSource(p)
	if got := src.Rules(); got != "v1" {
		t.Fatalf("unexpected rules: %q", got)
	}

	writeFile(t, dir, "rules.txt", "v2")
	// Force a distinct mtime; some filesystems have coarse resolution.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(p, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if got := src.Rules(); got != "v2" {
		t.Errorf("expected reloaded rules v2, got %q", got)
	}
}

// TestRulesSource_KeepsLastGoodOnFailure verifies a vanished file does not
// wipe the cached text.
func TestRulesSource_KeepsLastGoodOnFailure(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "rules.txt", "survivor")

	src := NewRulesSource(p)
	if got := src.Rules(); got != "survivor" {
		t.Fatalf("unexpected rules: %q", got)
	}

	os.Remove(p)
	if got := src.Rules(); got != "survivor" {
		t.Errorf("expected last good rules after removal, got %q", got)
	}
}

func TestRulesSource_CapsLength(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", MaxRulesLen+500)
	p := writeFile(t, dir, "rules.txt", long)

	src := NewRulesSource(p)
	if got := src.Rules(); len(got) != MaxRulesLen {
		t.Errorf("expected rules capped at %d, got %d", MaxRulesLen, len(got))
	}
}

func TestDocsIndex_Context(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guide.md",
		"# Guide\nBefore line\nThe billing module handles invoices.\nAfter line\nUnrelated trailing text about nothing\nmore filler\nfiller again")

	idx := NewDocsIndex(dir)
	ctx := idx.Context("how does billing work?")
	if !strings.Contains(ctx, "billing module") {
		t.Errorf("expected the matching line in context, got %q", ctx)
	}
	// One line of surrounding context on each side.
	if !strings.Contains(ctx, "Before line") || !strings.Contains(ctx, "After line") {
		t.Errorf("expected surrounding lines, got %q", ctx)
	}
	if strings.Contains(ctx, "filler again") {
		t.Errorf("unexpected unrelated line in context: %q", ctx)
	}
}

// TestDocsIndex_ShortTokensIgnored verifies messages with only short words
// yield no context.
func TestDocsIndex_ShortTokensIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "the cat sat on a mat")

	idx := NewDocsIndex(dir)
	if ctx := idx.Context("a cat on it"); ctx != "" {
		t.Errorf("expected no context for short tokens, got %q", ctx)
	}
}

func TestDocsIndex_NoPath(t *testing.T) {
	idx := NewDocsIndex("")
	if ctx := idx.Context("anything interesting"); ctx != "" {
		t.Errorf("expected no context without a docs path, got %q", ctx)
	}
}

func TestMatchTokens(t *testing.T) {
	tokens := matchTokens("Help! My BILLING invoice, billing again?!")
	want := map[string]bool{"help": true, "billing": true, "invoice": true, "again": true}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d unique tokens, got %v", len(want), tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

func TestFallbackLine(t *testing.T) {
	cases := []struct {
		message string
		substr  string
	}{
		{"hello there", "Hello!"},
		{"I need help with my account", "help"},
		{"thank you so much", "welcome"},
		{"what is the airspeed of a swallow", "try again later"},
	}
	for _, c := range cases {
		got := fallbackLine(c.message)
		if !strings.Contains(got, c.substr) {
			t.Errorf("fallbackLine(%q) = %q, expected it to contain %q", c.message, got, c.substr)
		}
	}
}
