package lastfm

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the default Last.fm API endpoint.
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultAuthURL is the page where users grant an application access.
	DefaultAuthURL = "https://www.last.fm/api/auth/"

	userAgent = "soundscribe/1.0"
)

// Config holds client configuration. APIKey and APISecret are required;
// empty URLs fall back to the public Last.fm endpoints.
type Config struct {
	APIKey     string
	APISecret  string
	HTTPClient *http.Client // nil uses http.DefaultClient
	BaseURL    string
	AuthURL    string
	Logger     *zerolog.Logger // nil disables request logging
}

// Client signs and sends Last.fm API calls.
//
// A Client holds no per-user state; session keys are passed to each
// authenticated call, so one Client can be shared between goroutines.
type Client struct {
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	baseURL    string
	authURL    string
	logger     zerolog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	switch {
	case cfg.APIKey == "":
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	case cfg.APISecret == "":
		return nil, fmt.Errorf("%w: APISecret is required", ErrInvalidConfig)
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: cfg.HTTPClient,
		baseURL:    orDefault(cfg.BaseURL, DefaultBaseURL),
		authURL:    orDefault(cfg.AuthURL, DefaultAuthURL),
		logger:     zerolog.Nop(),
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	return c, nil
}

// Auth returns the token and session calls.
func (c *Client) Auth() *AuthService {
	return &AuthService{client: c}
}

// Scrobble returns the now-playing and scrobble calls.
func (c *Client) Scrobble() *ScrobbleService {
	return &ScrobbleService{client: c}
}

// APIKey returns the API key the client signs requests with.
func (c *Client) APIKey() string {
	return c.apiKey
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
