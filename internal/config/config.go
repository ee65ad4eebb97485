package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains listener, storage and logging settings.
type Server struct {
	Addr             string `toml:"addr"`
	DBPath           string `toml:"db_path"`
	LogPath          string `toml:"log_path"`
	LogFormat        string `toml:"log_format"` // auto, text or json
	TokenExpiryHours int    `toml:"token_expiry_hours"`
	ShutdownTimeout  int    `toml:"shutdown_timeout"`
}

// Notifications selects where match and handoff notices are delivered.
type Notifications struct {
	Sink           string `toml:"sink"` // log, smtp, webhook or none
	QueueSize      int    `toml:"queue_size"`
	RequestTimeout int    `toml:"request_timeout"`
	SMTPAddr       string `toml:"smtp_addr"`
	SMTPFrom       string `toml:"smtp_from"`
	SMTPUsername   string `toml:"smtp_username"`
	SMTPPassword   string `toml:"smtp_password"`
	WebhookURL     string `toml:"webhook_url"`
}

// Matching configures keyword extraction and candidate scoring.
type Matching struct {
	StopWordsFile    string `toml:"stopwords_file"`
	VocabularyFile   string `toml:"vocabulary_file"`
	SynonymsFile     string `toml:"synonyms_file"`
	CategoriesFile   string `toml:"categories_file"`
	Scorer           string `toml:"scorer"` // keyword or gemini
	Workers          int    `toml:"workers"`
	StrictCategories bool   `toml:"strict_categories"`
}

// Gemini configures the optional AI scorer.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Instructions   string `toml:"instructions"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config is the complete service configuration.
type Config struct {
	Server        Server        `toml:"server"`
	Notifications Notifications `toml:"notifications"`
	Matching      Matching      `toml:"matching"`
	Gemini        Gemini        `toml:"gemini"`
}

// Load parses the config file at path on top of the defaults. A missing file
// is not an error; the returned bool reports whether one was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			exists = true
			decoder := toml.NewDecoder(file).DisallowUnknownFields()
			if err := decoder.Decode(&cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

// TokenExpiry is the lifetime of issued API tokens.
func (c *Config) TokenExpiry() time.Duration {
	return time.Duration(c.Server.TokenExpiryHours) * time.Hour
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// RequestTimeout bounds a single notification delivery.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// GeminiTimeout bounds a single scoring request.
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}

// CreateSample writes a commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if p[1] == '/' || p[1] == '\\' {
		return filepath.Join(home, p[2:])
	}
	return p
}
