package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mizuno-h/cardwatch/internal/classify"
	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/config"
	"github.com/mizuno-h/cardwatch/internal/faults"
	"github.com/mizuno-h/cardwatch/internal/gmailsource"
	"github.com/mizuno-h/cardwatch/internal/job"
	"github.com/mizuno-h/cardwatch/internal/pattern"
	"github.com/mizuno-h/cardwatch/internal/storage"
)

// databasePath resolves the database location from config, falling back to
// the XDG data directory.
func databasePath() (string, error) {
	if p := viper.GetString("database.path"); p != "" {
		return config.ExpandPath(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "cardwatch", "cardwatch.db"), nil
}

// openStore opens and migrates the database. Callers must Close it.
func openStore(ctx context.Context) (*storage.SQLiteStore, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func oauthConfig() gmailsource.OAuth2Config {
	tokenFile := config.ExpandPath(viper.GetString("gmail.token_file"))
	if tokenFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			tokenFile = filepath.Join(home, ".config", "cardwatch", "token.json")
		}
	}
	return gmailsource.OAuth2Config{
		ClientID:     viper.GetString("gmail.client_id"),
		ClientSecret: viper.GetString("gmail.client_secret"),
		TokenFile:    tokenFile,
	}
}

// openSource authenticates against Gmail using the saved token.
func openSource(ctx context.Context) (*gmailsource.Source, error) {
	cfg := oauthConfig()
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gmail.client_id and gmail.client_secret", common.ErrMissingConfig)
	}
	token, err := gmailsource.GetOrCreateToken(ctx, cfg)
	if err != nil {
		return nil, common.NewUserError("gmail authentication failed, run 'cardwatch auth'", err)
	}
	return gmailsource.New(ctx, cfg, token)
}

// buildController wires the full scan pipeline on top of an open store and
// source.
func buildController(store *storage.SQLiteStore, source *gmailsource.Source) (*job.Controller, error) {
	patterns, err := pattern.NewStore(pattern.Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to compile patterns: %w", err)
	}
	classifier := classify.New(patterns)
	fm := faults.NewManager(store)

	cfg := job.DefaultConfig()
	if v := viper.GetInt("scan.batch_size"); v > 0 {
		cfg.BatchSize = v
	}
	if v := viper.GetDuration("scan.soft_deadline"); v > 0 {
		cfg.SoftDeadline = v
	}

	return job.New(store, source, classifier, fm, pattern.DefaultKeywords(), cfg), nil
}

// userID identifies the account that owns jobs and saved records.
func userID() string {
	if u := viper.GetString("user"); u != "" {
		return u
	}
	return "default"
}
