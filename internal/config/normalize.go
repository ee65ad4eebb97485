package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Server.DBPath = expandPath(c.Server.DBPath)
	c.Server.LogPath = expandPath(c.Server.LogPath)
	c.Server.LogFormat = lower(c.Server.LogFormat, LogFormatAuto)
	if c.Server.TokenExpiryHours <= 0 {
		c.Server.TokenExpiryHours = DefaultTokenExpiryHours
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	n := &c.Notifications
	n.Sink = lower(n.Sink, SinkLog)
	if n.QueueSize <= 0 {
		n.QueueSize = DefaultQueueSize
	}
	if n.RequestTimeout <= 0 {
		n.RequestTimeout = DefaultRequestTimeout
	}
	n.SMTPAddr = strings.TrimSpace(n.SMTPAddr)
	n.SMTPFrom = strings.TrimSpace(n.SMTPFrom)
	n.WebhookURL = strings.TrimSpace(n.WebhookURL)
	if n.SMTPPassword == "" {
		n.SMTPPassword = os.Getenv("LOSTFOUND_SMTP_PASSWORD")
	}

	m := &c.Matching
	m.StopWordsFile = expandPath(m.StopWordsFile)
	m.VocabularyFile = expandPath(m.VocabularyFile)
	m.SynonymsFile = expandPath(m.SynonymsFile)
	m.CategoriesFile = expandPath(m.CategoriesFile)
	m.Scorer = lower(m.Scorer, ScorerKeyword)
	if m.Workers <= 0 {
		m.Workers = DefaultWorkers
	}

	g := &c.Gemini
	g.APIKey = strings.TrimSpace(g.APIKey)
	if g.APIKey == "" {
		g.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if g.Model = strings.TrimSpace(g.Model); g.Model == "" {
		g.Model = DefaultGeminiModel
	}
	if g.TimeoutSeconds <= 0 {
		g.TimeoutSeconds = DefaultGeminiTimeout
	}
}

func lower(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return s
}
