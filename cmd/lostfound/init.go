package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	var adminUser string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.cfg.Server.DBPath
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("database file %s already exists", path)
			}

			lock, err := lockDatabase(path)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			database, password, err := initDatabase(path, adminUser)
			if err != nil {
				return err
			}
			database.Close()

			printInitResult(cmd.OutOrStdout(), path, adminUser, password)
			return nil
		},
	}

	cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "admin username")
	return cmd
}

// initDatabase creates a new database, runs migrations, and creates the admin user.
func initDatabase(path, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(step string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("%s: %w", step, err)
	}

	if _, err := db.Migrate(database); err != nil {
		return fail("running migrations", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fail("hashing password", err)
	}

	_, err = store.CreateUser(context.Background(), database, &model.User{
		Username:     adminUsername,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	})
	if err != nil {
		return fail("creating admin user", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(w io.Writer, dbPath, username, password string) {
	fmt.Fprintf(w, "Database created: %s\n", dbPath)
	fmt.Fprintln(w, "Schema initialized.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Admin account created:")
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password, it cannot be recovered.")
	fmt.Fprintln(w, "The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
