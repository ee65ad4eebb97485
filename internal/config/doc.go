// Package config loads the lostfound TOML configuration.
//
// Values are resolved in order: built-in defaults, the config file, then
// environment variables for secrets (LOSTFOUND_SMTP_PASSWORD, GEMINI_API_KEY).
// Command line flags are applied by the caller after Load.
package config
