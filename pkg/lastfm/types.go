package lastfm

import (
	"time"
)

// Track represents a music track for scrobbling or now playing updates.
type Track struct {
	Artist   string // Required: Artist name
	Track    string // Required: Track name
	Album    string // Optional: Album name
	Duration int    // Optional: Track duration in seconds
}

// Scrobble represents a single scrobble with timestamp.
type Scrobble struct {
	Track     Track     // The track being scrobbled
	Timestamp time.Time // When the track started playing
}

// Session represents an authenticated session from auth.getSession.
type Session struct {
	Key        string // Session key for authenticated requests
	Username   string // Last.fm username
	Subscriber bool   // Whether user is a subscriber
}

// IgnoredMessage explains why Last.fm ignored a submission. Code 0 means accepted.
type IgnoredMessage struct {
	Code int
	Text string
}

// NowPlayingResponse represents the response from track.updateNowPlaying.
type NowPlayingResponse struct {
	Artist         string
	Track          string
	Album          string
	IgnoredMessage IgnoredMessage
}

// ScrobbleResult is the per-track part of a track.scrobble response.
type ScrobbleResult struct {
	Artist         string
	Track          string
	Album          string
	Timestamp      int64
	IgnoredMessage IgnoredMessage
}

// ScrobbleResponse represents the response from track.scrobble.
type ScrobbleResponse struct {
	Accepted  int // Number of scrobbles accepted
	Ignored   int // Number of scrobbles ignored
	Scrobbles []ScrobbleResult
}
