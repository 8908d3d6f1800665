package daemon

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/scrobbler"
	"github.com/jfmyers9/soundscribe/internal/store"
)

// Event is one telemetry report from the page script.
type Event struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	DurationMs uint64
	PositionMs uint64
	Paused     bool
	TS         uint64 // Sender clock in ms, 0 if unknown
}

// TrackState is the track currently being tracked
type TrackState struct {
	InstanceID     string // Unique per detection of a track
	TrackID        string
	Title          string
	Artist         string
	Album          string
	DurationMs     uint64
	StartedAt      time.Time // now minus the position reported on detection
	ListenedMs     uint64    // Accumulated non-paused play time
	LastPosMs      uint64
	LastTS         uint64
	Scrobbled      bool
	NowPlayingSent bool
}

// ActionKind identifies an outbound submission.
type ActionKind int

const (
	ActionNowPlaying ActionKind = iota
	ActionScrobble
)

func (k ActionKind) String() string {
	switch k {
	case ActionNowPlaying:
		return store.KindNowPlaying
	case ActionScrobble:
		return store.KindScrobble
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a submission decided by State.Apply. Track is a copy taken
// when the decision was made.
type Action struct {
	Kind  ActionKind
	Track TrackState
}

// SettingsSource provides the current scrobble settings.
type SettingsSource interface {
	Get(ctx context.Context) (store.Settings, error)
}

// State owns the single current TrackState.
type State struct {
	mu       sync.Mutex
	current  *TrackState
	settings SettingsSource
	now      func() time.Time
	logger   zerolog.Logger
}

// NewState creates a State reading its settings from settings.
func NewState(settings SettingsSource, logger zerolog.Logger) *State {
	return &State{
		settings: settings,
		now:      time.Now,
		logger:   logger.With().Str("component", "state").Logger(),
	}
}

// Apply feeds one telemetry event through the state machine and returns
// the submissions it triggered. The caller executes them; nothing here
// touches the network.
func (s *State) Apply(ctx context.Context, ev Event) ([]Action, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if !settings.EnableScrobble {
		return nil, nil
	}

	if strings.TrimSpace(ev.Title) == "" || strings.TrimSpace(ev.Artist) == "" || ev.DurationMs == 0 {
		s.logger.Debug().
			Str("track_id", ev.TrackID).
			Uint64("duration_ms", ev.DurationMs).
			Msg("Ignoring incomplete playback event")
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.TrackID != ev.TrackID {
		return s.startTrack(ev, settings), nil
	}

	cur := s.current

	if ev.TS != 0 && ev.TS < cur.LastTS {
		s.logger.Debug().
			Str("track_id", ev.TrackID).
			Uint64("ts", ev.TS).
			Uint64("last_ts", cur.LastTS).
			Msg("Dropping out-of-order playback event")
		return nil, nil
	}
	if ev.TS > cur.LastTS {
		cur.LastTS = ev.TS
	}

	var delta uint64
	if ev.PositionMs > cur.LastPosMs {
		delta = ev.PositionMs - cur.LastPosMs
	}
	if !ev.Paused {
		cur.ListenedMs += delta
	}
	cur.LastPosMs = ev.PositionMs

	threshold := store.ClampThreshold(settings.Threshold)
	if cur.Scrobbled || !scrobbler.ShouldScrobble(cur.DurationMs, cur.ListenedMs, threshold) {
		return nil, nil
	}

	cur.Scrobbled = true
	s.logger.Debug().
		Str("track_id", cur.TrackID).
		Str("instance", cur.InstanceID).
		Uint64("listened_ms", cur.ListenedMs).
		Uint64("threshold_ms", scrobbler.ThresholdMs(cur.DurationMs, threshold)).
		Msg("Scrobble threshold reached")

	return []Action{{Kind: ActionScrobble, Track: *cur}}, nil
}

// startTrack replaces the current track. Must be called with lock held.
func (s *State) startTrack(ev Event, settings store.Settings) []Action {
	now := s.now()
	startedAt := time.Unix(0, 0)
	if elapsed := now.Sub(startedAt); elapsed > 0 && ev.PositionMs < uint64(elapsed.Milliseconds()) {
		startedAt = now.Add(-msDuration(ev.PositionMs))
	}

	s.current = &TrackState{
		InstanceID: uuid.NewString(),
		TrackID:    ev.TrackID,
		Title:      ev.Title,
		Artist:     ev.Artist,
		Album:      ev.Album,
		DurationMs: ev.DurationMs,
		StartedAt:  startedAt,
		LastPosMs:  ev.PositionMs,
		LastTS:     ev.TS,
	}

	s.logger.Info().
		Str("track", ev.Title).
		Str("artist", ev.Artist).
		Str("instance", s.current.InstanceID).
		Msg("Track changed")

	if !settings.EnableNowPlaying {
		return nil
	}

	s.current.NowPlayingSent = true
	return []Action{{Kind: ActionNowPlaying, Track: *s.current}}
}

// msDuration converts milliseconds to a Duration, saturating at the
// largest representable value.
func msDuration(ms uint64) time.Duration {
	if ms > uint64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// Current returns a copy of the current track and whether one exists.
func (s *State) Current() (TrackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return TrackState{}, false
	}
	return *s.current, true
}
