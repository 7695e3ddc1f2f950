// Package config loads and validates the OpenClaw server YAML configuration.
// It applies defaults so the rest of the server can rely on fully populated
// values. Config is read once at startup; the process restarts to pick up
// changes.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the listener and protocol limits.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	CertPath        string   `yaml:"cert_path"`
	KeyPath         string   `yaml:"key_path"`
	SizeLimit       int64    `yaml:"file_size_limit"`
	BlacklistExts   []string `yaml:"blacklist_extensions"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_seconds"`
	MaxStatusLength int      `yaml:"max_status_length"`
	MaxLineBytes    int      `yaml:"max_line_bytes"`
	ServerName      string   `yaml:"server_name"`
	AdminFile       string   `yaml:"admin_file"`
	HTTPStatusAddr  string   `yaml:"http_status_addr"`
}

// SMTPConfig holds outbound mail settings. Verification codes are only
// issued when Enabled is true.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// FlexPBXConfig holds the SMS gateway settings.
type FlexPBXConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	FromNum  string `yaml:"from_number"`
}

// WelcomeConfig holds the pre- and post-login welcome texts.
type WelcomeConfig struct {
	PreLogin  string `yaml:"pre_login"`
	PostLogin string `yaml:"post_login"`
}

// BotsConfig describes the virtual bots and the external services used to
// synthesize their replies.
type BotsConfig struct {
	Names          []string          `yaml:"names"`
	External       []string          `yaml:"external"`
	Statuses       map[string]string `yaml:"statuses"`
	Purposes       map[string]string `yaml:"purposes"`
	Services       map[string]string `yaml:"services"`
	Voices         map[string]string `yaml:"voices"`
	RulesPath      string            `yaml:"rules_path"`
	DocsPath       string            `yaml:"docs_path"`
	TextGenURL     string            `yaml:"textgen_url"`
	TextGenModel   string            `yaml:"textgen_model"`
	TextGenTimeout int               `yaml:"textgen_timeout_seconds"`
	SystemPrompt   string            `yaml:"system_prompt"`
	TTSEnabled     bool              `yaml:"tts_enabled"`
	TTSBinary      string            `yaml:"tts_binary"`
	TTSModelDir    string            `yaml:"tts_model_dir"`
	TTSVoice       string            `yaml:"tts_default_voice"`
	TTSTimeout     int               `yaml:"tts_timeout_seconds"`
}

// Config mirrors the openclaw.yaml schema.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	FlexPBX FlexPBXConfig `yaml:"flexpbx"`
	Welcome WelcomeConfig `yaml:"welcome"`
	Bots    BotsConfig    `yaml:"bots"`
}

// Load reads a YAML config file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	ApplyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ApplyDefaults populates zero-values with sane defaults. Exported so tests
// and embedded callers can build configs without a file.
func ApplyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 5222
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5
	}
	if c.Server.MaxStatusLength == 0 {
		c.Server.MaxStatusLength = 100
	}
	if c.Server.MaxLineBytes == 0 {
		c.Server.MaxLineBytes = 1 << 20
	}
	if c.Server.ServerName == "" {
		c.Server.ServerName = "OpenClaw"
	}
	if c.Server.AdminFile == "" {
		c.Server.AdminFile = "admins.txt"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Welcome.PreLogin == "" {
		c.Welcome.PreLogin = "Welcome to " + c.Server.ServerName + "."
	}
	if c.Bots.TextGenTimeout == 0 {
		c.Bots.TextGenTimeout = 30
	}
	if c.Bots.TTSTimeout == 0 {
		c.Bots.TTSTimeout = 20
	}
	if c.Bots.TextGenModel == "" {
		c.Bots.TextGenModel = "llama3"
	}
	for i, e := range c.Server.BlacklistExts {
		c.Server.BlacklistExts[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
	}
}

func validate(c *Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port out of range")
	}
	if c.Server.SizeLimit < 0 {
		return errors.New("server.file_size_limit must be >= 0")
	}
	if (c.Server.CertPath == "") != (c.Server.KeyPath == "") {
		return errors.New("server.cert_path and server.key_path must be set together")
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return errors.New("smtp.host is required when smtp is enabled")
	}
	if c.FlexPBX.Enabled && c.FlexPBX.APIURL == "" {
		return errors.New("flexpbx.api_url is required when flexpbx is enabled")
	}
	return nil
}

// ShutdownDelay returns the admin exit/restart warning window.
func (c *Config) ShutdownDelay() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// IsBot reports whether name matches a configured virtual bot,
// case-insensitively, and returns the configured casing.
func (b *BotsConfig) IsBot(name string) (string, bool) {
	for _, n := range b.Names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// IsExternalBot reports whether name matches a configured external bot.
func (b *BotsConfig) IsExternalBot(name string) (string, bool) {
	for _, n := range b.External {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// Status returns the presence status reported for a virtual bot.
func (b *BotsConfig) Status(name string) string {
	if s, ok := b.Statuses[name]; ok && s != "" {
		return s
	}
	return "online"
}

// Voice resolves the TTS voice for a bot, falling back to the default.
func (b *BotsConfig) Voice(name string) string {
	if v, ok := b.Voices[name]; ok && v != "" {
		return v
	}
	return b.TTSVoice
}
