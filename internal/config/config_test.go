package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "openclaw.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  server_name: TestNet\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.Port != 5222 {
		t.Errorf("Port = %d, want 5222", c.Server.Port)
	}
	if c.Server.MaxStatusLength != 100 {
		t.Errorf("MaxStatusLength = %d, want 100", c.Server.MaxStatusLength)
	}
	if c.Server.MaxLineBytes != 1<<20 {
		t.Errorf("MaxLineBytes = %d, want 1MiB", c.Server.MaxLineBytes)
	}
	if c.Bots.TextGenTimeout != 30 {
		t.Errorf("TextGenTimeout = %d, want 30", c.Bots.TextGenTimeout)
	}
	if c.Welcome.PreLogin == "" {
		t.Error("PreLogin default should mention the server name")
	}
}

func TestLoad_BlacklistNormalized(t *testing.T) {
	path := writeConfig(t, `
server:
  blacklist_extensions: [".EXE", "bat", " .Com "]
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"exe", "bat", "com"}
	for i, w := range want {
		if c.Server.BlacklistExts[i] != w {
			t.Errorf("BlacklistExts[%d] = %q, want %q", i, c.Server.BlacklistExts[i], w)
		}
	}
}

func TestLoad_CertKeyPairRequired(t *testing.T) {
	path := writeConfig(t, "server:\n  cert_path: cert.pem\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for cert without key")
	}
}

func TestLoad_SMTPHostRequired(t *testing.T) {
	path := writeConfig(t, "smtp:\n  enabled: true\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for enabled smtp without host")
	}
}

func TestBots_Lookup(t *testing.T) {
	b := BotsConfig{
		Names:    []string{"openclaw-bot", "helper"},
		Statuses: map[string]string{"helper": "ready to help"},
		Voices:   map[string]string{"helper": "en_US-amy"},
		TTSVoice: "en_US-joe",
	}

	if name, ok := b.IsBot("OPENCLAW-BOT"); !ok || name != "openclaw-bot" {
		t.Errorf("IsBot case-insensitive lookup failed: %q %v", name, ok)
	}
	if _, ok := b.IsBot("nobody"); ok {
		t.Error("IsBot matched an unknown name")
	}
	if got := b.Status("helper"); got != "ready to help" {
		t.Errorf("Status = %q", got)
	}
	if got := b.Status("openclaw-bot"); got != "online" {
		t.Errorf("Status default = %q, want online", got)
	}
	if got := b.Voice("openclaw-bot"); got != "en_US-joe" {
		t.Errorf("Voice default = %q", got)
	}
}
