package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/config"
	"github.com/jfmyers9/soundscribe/internal/scrobbler"
	"github.com/jfmyers9/soundscribe/internal/store"
)

const keyringService = "soundscribe"

// openDatabase opens the database under the configured data directory.
func openDatabase(cfg *config.Config) (*store.SQLite, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// sessionKV picks where the Last.fm session is kept.
func sessionKV(cfg *config.Config, db *store.SQLite) store.KV {
	if cfg.SessionStore == config.SessionStoreKeyring {
		return store.NewKeyring(keyringService)
	}
	return db
}

// newScrobbler builds the Last.fm client from the configured credentials.
func newScrobbler(cfg *config.Config, logger zerolog.Logger) (*scrobbler.Client, error) {
	return scrobbler.New(
		scrobbler.Credentials{
			APIKey:    cfg.LastFM.APIKey,
			APISecret: cfg.LastFM.APISecret,
		},
		scrobbler.Options{
			BaseURL: cfg.LastFM.BaseURL,
			AuthURL: cfg.LastFM.AuthURL,
			Timeout: cfg.RequestTimeout,
			Logger:  logger,
		},
	)
}

// cliLogger is the logger for interactive commands.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()
}
