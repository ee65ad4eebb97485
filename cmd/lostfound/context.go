package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/erazemk/lostfound/internal/config"
	"github.com/erazemk/lostfound/internal/db"
)

// commandContext carries the flags shared by every command and the lazily
// loaded configuration.
type commandContext struct {
	configFlag *string
	dbFlag     *string
	logFlag    *string

	cfg      *config.Config
	closeLog func()
}

func newCommandContext(configFlag, dbFlag, logFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, dbFlag: dbFlag, logFlag: logFlag}
}

// ensureConfig loads the config file, applies flag overrides and installs the
// logger. It runs once per process.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, exists, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	if *c.dbFlag != "" {
		cfg.Server.DBPath = *c.dbFlag
	}
	if *c.logFlag != "" {
		cfg.Server.LogPath = *c.logFlag
	}

	closeLog, err := setupLogger(cfg.Server.LogPath, cfg.Server.LogFormat)
	if err != nil {
		return nil, err
	}
	c.closeLog = closeLog
	c.cfg = cfg

	if exists {
		slog.Debug("configuration loaded", "path", *c.configFlag)
	}
	return cfg, nil
}

func (c *commandContext) close() {
	if c.closeLog != nil {
		c.closeLog()
		c.closeLog = nil
	}
}

// openDatabase opens the configured database and brings its schema up to
// date. A missing database file is an error; use init to create one.
func (c *commandContext) openDatabase() (*sql.DB, error) {
	path := c.cfg.Server.DBPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database %s does not exist (run lostfound init)", path)
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}

// lockDatabase takes an exclusive lock next to the database file so only one
// writer process runs against it.
func lockDatabase(path string) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("database %s is in use by another lostfound process", path)
	}
	return lock, nil
}
