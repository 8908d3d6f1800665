package scrobbler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/store"
	"github.com/jfmyers9/soundscribe/pkg/lastfm"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 8 * time.Second

// ErrNoCredentials is returned by New when the API key or secret is missing.
var ErrNoCredentials = errors.New("scrobbler: Last.fm API key and secret are not configured")

// Credentials identify the application to Last.fm.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Valid reports whether both halves of the credentials are set.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// Options tune a Client. The zero value talks to the real Last.fm API.
type Options struct {
	BaseURL string        // Override the API endpoint (tests)
	AuthURL string        // Override the authorization page
	Timeout time.Duration // Per-call bound, DefaultTimeout if zero
	Logger  zerolog.Logger
}

// Track is the snapshot of a track handed to the client.
type Track struct {
	Title     string
	Artist    string
	Album     string
	Duration  time.Duration
	StartedAt time.Time
}

// Client wraps the Last.fm API client
type Client struct {
	api     *lastfm.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a new Last.fm client bound to creds.
func New(creds Credentials, opts Options) (*Client, error) {
	if !creds.Valid() {
		return nil, ErrNoCredentials
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := opts.Logger.With().Str("component", "scrobbler").Logger()

	api, err := lastfm.NewClient(lastfm.Config{
		APIKey:     creds.APIKey,
		APISecret:  creds.APISecret,
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    opts.BaseURL,
		AuthURL:    opts.AuthURL,
		Logger:     &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lastfm client: %w", err)
	}

	return &Client{
		api:     api,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// AuthURL returns the page the user visits to grant access. Last.fm
// redirects to callback with the one-time token.
func (c *Client) AuthURL(callback string) string {
	return c.api.Auth().WebAuthURL(callback)
}

// ExchangeSession trades an authorization token for a session.
func (c *Client) ExchangeSession(ctx context.Context, token string) (store.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.api.Auth().GetSession(ctx, token)
	if err != nil {
		return store.Session{}, fmt.Errorf("failed to exchange token for session: %w", err)
	}

	return store.Session{
		Key:      session.Key,
		Username: session.Username,
		LinkedAt: time.Now(),
	}, nil
}

// SendNowPlaying announces track as currently playing.
func (c *Client) SendNowPlaying(ctx context.Context, session store.Session, track Track) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Scrobble().UpdateNowPlaying(ctx, session.Key, toLastfm(track))
	if err != nil {
		return fmt.Errorf("failed to update now playing: %w", err)
	}

	if resp.IgnoredMessage.Code != 0 {
		return fmt.Errorf("now playing was ignored: %s", resp.IgnoredMessage.Text)
	}

	return nil
}

// SendScrobble submits track with its start time as the scrobble timestamp.
func (c *Client) SendScrobble(ctx context.Context, session store.Session, track Track) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Scrobble().Scrobble(ctx, session.Key, toLastfm(track), track.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to scrobble track: %w", err)
	}

	if resp.Ignored > 0 {
		if len(resp.Scrobbles) > 0 && resp.Scrobbles[0].IgnoredMessage.Text != "" {
			return fmt.Errorf("scrobble was ignored: %s", resp.Scrobbles[0].IgnoredMessage.Text)
		}
		return fmt.Errorf("scrobble was ignored by Last.fm")
	}

	return nil
}

func toLastfm(track Track) lastfm.Track {
	lfmTrack := lastfm.Track{
		Artist: track.Artist,
		Track:  track.Title,
		Album:  track.Album,
	}

	if track.Duration > 0 {
		lfmTrack.Duration = int(track.Duration.Seconds())
	}

	return lfmTrack
}
