package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "soundscribe"

// Session store backends.
const (
	SessionStoreSQLite  = "sqlite"
	SessionStoreKeyring = "keyring"
)

// Config holds application configuration
type Config struct {
	// Last.fm API credentials and endpoints
	LastFM LastFMConfig

	// Loopback endpoint the page script reports to
	Ingest IngestConfig

	// Authorization callback delivery
	Auth AuthConfig

	// Bound on every outbound Last.fm call
	RequestTimeout time.Duration

	// Where the database lives
	DataDir string

	// "sqlite" or "keyring"
	SessionStore string
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	AuthURL   string
}

// IngestConfig configures the ingestion endpoint.
type IngestConfig struct {
	Port        int
	ReadTimeout time.Duration
}

// AuthConfig configures how the authorization token comes back.
type AuthConfig struct {
	CallbackPort int
	Scheme       string
}

// HasCredentials reports whether both the API key and secret are set.
func (c LastFMConfig) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, appName+".db")
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	return load(getConfigDir(), ".")
}

func load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("lastfm.base_url", "https://ws.audioscrobbler.com/2.0/")
	v.SetDefault("lastfm.auth_url", "https://www.last.fm/api/auth/")
	v.SetDefault("ingest.port", 0)
	v.SetDefault("ingest.read_timeout", 10*time.Second)
	v.SetDefault("auth.callback_port", 0)
	v.SetDefault("auth.scheme", appName)
	v.SetDefault("request_timeout", 8*time.Second)
	v.SetDefault("data_dir", filepath.Join(xdg.DataHome, appName))
	v.SetDefault("session_store", SessionStoreSQLite)

	// The file is optional, a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// SOUNDSCRIBE_LASTFM_API_KEY overrides lastfm.api_key
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		LastFM: LastFMConfig{
			APIKey:    v.GetString("lastfm.api_key"),
			APISecret: v.GetString("lastfm.api_secret"),
			BaseURL:   v.GetString("lastfm.base_url"),
			AuthURL:   v.GetString("lastfm.auth_url"),
		},
		Ingest: IngestConfig{
			Port:        v.GetInt("ingest.port"),
			ReadTimeout: v.GetDuration("ingest.read_timeout"),
		},
		Auth: AuthConfig{
			CallbackPort: v.GetInt("auth.callback_port"),
			Scheme:       v.GetString("auth.scheme"),
		},
		RequestTimeout: v.GetDuration("request_timeout"),
		DataDir:        v.GetString("data_dir"),
		SessionStore:   strings.ToLower(v.GetString("session_store")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case SessionStoreSQLite, SessionStoreKeyring:
	default:
		return fmt.Errorf("invalid session_store %q: must be %q or %q", c.SessionStore, SessionStoreSQLite, SessionStoreKeyring)
	}
	if c.Ingest.Port < 0 || c.Ingest.Port > 65535 {
		return fmt.Errorf("invalid ingest.port %d", c.Ingest.Port)
	}
	if c.Auth.CallbackPort < 0 || c.Auth.CallbackPort > 65535 {
		return fmt.Errorf("invalid auth.callback_port %d", c.Auth.CallbackPort)
	}
	if c.Auth.Scheme == "" {
		return errors.New("auth.scheme must not be empty")
	}
	return nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	configDir := filepath.Join(xdg.ConfigHome, appName)

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	return c.saveTo(filepath.Join(getConfigDir(), "config.yaml"))
}

func (c *Config) saveTo(configFile string) error {
	v := viper.New()

	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.api_secret", c.LastFM.APISecret)
	v.Set("lastfm.base_url", c.LastFM.BaseURL)
	v.Set("lastfm.auth_url", c.LastFM.AuthURL)
	v.Set("ingest.port", c.Ingest.Port)
	v.Set("ingest.read_timeout", c.Ingest.ReadTimeout.String())
	v.Set("auth.callback_port", c.Auth.CallbackPort)
	v.Set("auth.scheme", c.Auth.Scheme)
	v.Set("request_timeout", c.RequestTimeout.String())
	v.Set("data_dir", c.DataDir)
	v.Set("session_store", c.SessionStore)

	// Credentials live here, keep the file private.
	if err := v.WriteConfigAs(configFile); err != nil {
		return err
	}
	return os.Chmod(configFile, 0600)
}
