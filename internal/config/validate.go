package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateMatching()
}

func (c *Config) validateServer() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.DBPath == "" {
		return errors.New("server.db_path must be set")
	}
	switch c.Server.LogFormat {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("server.log_format must be auto, text or json, got %q", c.Server.LogFormat)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	n := c.Notifications
	switch n.Sink {
	case SinkLog, SinkNone:
	case SinkSMTP:
		if n.SMTPAddr == "" || n.SMTPFrom == "" {
			return errors.New("notifications.smtp_addr and notifications.smtp_from are required for the smtp sink")
		}
	case SinkWebhook:
		u, err := url.Parse(n.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notifications.webhook_url must be an http(s) URL, got %q", n.WebhookURL)
		}
	default:
		return fmt.Errorf("notifications.sink must be log, smtp, webhook or none, got %q", n.Sink)
	}
	return nil
}

func (c *Config) validateMatching() error {
	switch c.Matching.Scorer {
	case ScorerKeyword:
	case ScorerGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("gemini.api_key is required when matching.scorer is gemini (or set GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("matching.scorer must be keyword or gemini, got %q", c.Matching.Scorer)
	}
	return nil
}
