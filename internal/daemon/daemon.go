package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/ingest"
	"github.com/jfmyers9/soundscribe/internal/notify"
	"github.com/jfmyers9/soundscribe/internal/scrobbler"
	"github.com/jfmyers9/soundscribe/internal/store"
)

// AddrKey is the KV key the bound ingestion address is published under.
const AddrKey = "ingest.addr"

const (
	shutdownTimeout  = 5 * time.Second
	historyRetention = 7 * 24 * time.Hour
)

// Submitter sends actions to Last.fm.
type Submitter interface {
	SendNowPlaying(ctx context.Context, session store.Session, track scrobbler.Track) error
	SendScrobble(ctx context.Context, session store.Session, track scrobbler.Track) error
}

// Config holds daemon configuration
type Config struct {
	IngestPort        int           // 0 picks an ephemeral port
	IngestReadTimeout time.Duration // Bound on a single ingestion request
	Sessions          store.KV      // Where the session lives, defaults to the database
}

// Daemon ties the ingestion endpoint, the state machine and the scrobble
// client together.
type Daemon struct {
	config   Config
	db       *store.SQLite
	kv       store.KV
	settings *store.SettingsStore
	sessions *store.SessionStore
	history  *store.History
	client   Submitter
	notifier notify.Notifier
	state    *State
	logger   zerolog.Logger

	server *ingest.Server
	wg     sync.WaitGroup

	notifyMu     sync.Mutex
	lastNotifyID uint32
}

// New creates a new Daemon. client may be nil when no API credentials are
// configured; submissions are then skipped.
func New(cfg Config, db *store.SQLite, client Submitter, notifier notify.Notifier, logger zerolog.Logger) (*Daemon, error) {
	if db == nil {
		return nil, errors.New("daemon: database is required")
	}
	if notifier == nil {
		notifier = notify.Nop()
	}

	sessionKV := cfg.Sessions
	if sessionKV == nil {
		sessionKV = db
	}

	settings := store.NewSettingsStore(db)

	return &Daemon{
		config:   cfg,
		db:       db,
		kv:       db,
		settings: settings,
		sessions: store.NewSessionStore(sessionKV),
		history:  db.History(),
		client:   client,
		notifier: notifier,
		state:    NewState(settings, logger),
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run serves ingestion until ctx is done.
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	if d.client == nil {
		d.logger.Info().Msg("No Last.fm API credentials configured, submissions will be skipped")
	}

	server, err := ingest.Start(ingest.Options{
		Port:        d.config.IngestPort,
		ReadTimeout: d.config.IngestReadTimeout,
		Playback:    d,
		Settings:    d.settings,
		Logger:      d.logger,
	})
	if err != nil {
		// The rest of the daemon keeps running without ingestion.
		d.logger.Warn().Err(err).Msg("Failed to start ingestion endpoint, playback tracking disabled")
	} else {
		d.server = server
		if err := d.kv.Set(ctx, AddrKey, server.Addr()); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to publish ingestion address")
		}
	}

	<-ctx.Done()

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Ingestion endpoint did not shut down cleanly")
		}
	}

	// Wait for in-flight submissions
	d.wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return ctx.Err()
}

// HandlePlayback applies one telemetry event and dispatches the resulting
// submissions in the background.
func (d *Daemon) HandlePlayback(ctx context.Context, p ingest.Playback) {
	actions, err := d.state.Apply(ctx, Event{
		TrackID:    p.TrackID,
		Title:      p.Title,
		Artist:     p.Artist,
		Album:      p.Album,
		DurationMs: p.DurationMs,
		PositionMs: p.PositionMs,
		Paused:     p.Paused,
		TS:         p.TS,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to apply playback event")
		return
	}

	for _, action := range actions {
		d.wg.Add(1)
		go func(a Action) {
			defer d.wg.Done()
			d.dispatch(context.Background(), a)
		}(action)
	}
}

// dispatch submits one action. Failures are logged and dropped.
func (d *Daemon) dispatch(ctx context.Context, action Action) {
	logger := d.logger.With().
		Str("action", action.Kind.String()).
		Str("track", action.Track.Title).
		Str("artist", action.Track.Artist).
		Str("instance", action.Track.InstanceID).
		Logger()

	if d.client == nil {
		logger.Info().Msg("Skipping submission, no API credentials")
		return
	}

	session, err := d.sessions.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load session")
		return
	}
	if session == nil {
		logger.Info().Msg("Skipping submission, Last.fm account not connected")
		return
	}

	track := scrobbler.Track{
		Title:     action.Track.Title,
		Artist:    action.Track.Artist,
		Album:     action.Track.Album,
		Duration:  msDuration(action.Track.DurationMs),
		StartedAt: action.Track.StartedAt,
	}

	switch action.Kind {
	case ActionNowPlaying:
		err = d.client.SendNowPlaying(ctx, *session, track)
	case ActionScrobble:
		err = d.client.SendScrobble(ctx, *session, track)
	default:
		err = fmt.Errorf("unknown action %s", action.Kind)
	}

	d.record(ctx, action, err)

	if err != nil {
		logger.Warn().Err(err).Msg("Submission failed")
		return
	}

	logger.Info().Msg("Submitted successfully")

	if action.Kind == ActionScrobble {
		d.notifyScrobbled(ctx, action.Track)
	}
}

func (d *Daemon) record(ctx context.Context, action Action, err error) {
	sub := store.Submission{
		Kind:      action.Kind.String(),
		TrackID:   action.Track.TrackID,
		TrackName: action.Track.Title,
		Artist:    action.Track.Artist,
		Album:     action.Track.Album,
		Duration:  msDuration(action.Track.DurationMs),
		Timestamp: action.Track.StartedAt,
	}
	if err != nil {
		sub.Error = err.Error()
	}

	if _, recErr := d.history.Record(ctx, sub); recErr != nil {
		d.logger.Debug().Err(recErr).Msg("Failed to record submission")
	}
}

func (d *Daemon) notifyScrobbled(ctx context.Context, track TrackState) {
	settings, err := d.settings.Get(ctx)
	if err != nil || !settings.EnableNotifications {
		return
	}

	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	id, err := d.notifier.Notify(notify.Scrobbled(track.Title, track.Artist, track.Album, d.lastNotifyID))
	if err != nil {
		d.logger.Debug().Err(err).Msg("Failed to show notification")
		return
	}
	d.lastNotifyID = id
}

// Shutdown prunes old history and closes the database.
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	ctx := context.Background()

	if _, err := d.history.Cleanup(ctx, historyRetention); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup history")
	}

	if err := d.kv.Delete(ctx, AddrKey); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to clear ingestion address")
	}

	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
