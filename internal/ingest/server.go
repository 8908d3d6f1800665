// Package ingest runs the loopback HTTP endpoint the page script reports
// playback to. It serves /playback and /settings on 127.0.0.1 and never
// turns a bad payload into a client-visible error.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/store"
)

const (
	// DefaultReadTimeout bounds how long a client may take to send a request.
	DefaultReadTimeout = 10 * time.Second

	maxBodyBytes = 64 << 10
)

// Playback is a decoded telemetry report.
type Playback struct {
	TrackID    string
	Title      string
	Artist     string
	Album      string
	DurationMs uint64
	PositionMs uint64
	Paused     bool
	TS         uint64
}

// PlaybackHandler consumes telemetry. It must not block on the network.
type PlaybackHandler interface {
	HandlePlayback(ctx context.Context, p Playback)
}

// SettingsService reads and updates the scrobble settings.
type SettingsService interface {
	Get(ctx context.Context) (store.Settings, error)
	Update(ctx context.Context, patch store.SettingsPatch) (store.Settings, error)
}

// Options configure a Server.
type Options struct {
	Port        int           // 0 picks an ephemeral port
	ReadTimeout time.Duration // DefaultReadTimeout if zero
	Playback    PlaybackHandler
	Settings    SettingsService
	Logger      zerolog.Logger
}

// Server is the running ingestion endpoint.
type Server struct {
	server   *http.Server
	listener net.Listener
	playback PlaybackHandler
	settings SettingsService
	logger   zerolog.Logger
	done     chan struct{}
}

// Start binds 127.0.0.1:opts.Port and begins serving in the background.
func Start(opts Options) (*Server, error) {
	if opts.Playback == nil || opts.Settings == nil {
		return nil, errors.New("ingest: playback handler and settings service are required")
	}

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		listener: listener,
		playback: opts.Playback,
		settings: opts.Settings,
		logger:   opts.Logger.With().Str("component", "ingest").Logger(),
		done:     make(chan struct{}),
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      readTimeout,
		IdleTimeout:       2 * readTimeout,
		MaxHeaderBytes:    16 << 10,
	}

	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn().Err(err).Msg("Ingestion endpoint stopped")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("Ingestion endpoint listening")
	return s, nil
}

// Addr returns the bound host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns the base URL page scripts should post to.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}

// Handler returns the routing handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /playback", s.handlePlayback)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("POST /settings", s.handlePostSettings)
	return cors(requireLength(mux))
}

// cors allows the page script, which runs under the remote site's
// origin, to reach the loopback port. Preflight is answered for any path.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireLength answers 411 to body-carrying requests sent without a
// Content-Length, and caps the body size.
func requireLength(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength < 0 || r.Header.Get("Content-Length") == "" {
				http.Error(w, "length required", http.StatusLengthRequired)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// playbackBody is the wire shape. Numbers are decoded as float64 so a
// script sending fractional or negative milliseconds is still accepted.
type playbackBody struct {
	TrackID    string  `json:"trackId"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	DurationMs float64 `json:"durationMs"`
	PositionMs float64 `json:"positionMs"`
	Paused     bool    `json:"paused"`
	TS         float64 `json:"ts"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	defer writeOK(w)

	var body playbackBody
	if err := decode(r.Body, &body); err != nil {
		s.logger.Warn().Err(err).Msg("Ignoring malformed playback payload")
		return
	}

	p := Playback{
		TrackID:    strings.TrimSpace(body.TrackID),
		Title:      strings.TrimSpace(body.Title),
		Artist:     strings.TrimSpace(body.Artist),
		Album:      strings.TrimSpace(body.Album),
		DurationMs: millis(body.DurationMs),
		PositionMs: millis(body.PositionMs),
		Paused:     body.Paused,
		TS:         millis(body.TS),
	}
	if p.TrackID == "" {
		p.TrackID = DeriveTrackID(p.Artist, p.Title)
	}

	s.playback.HandlePlayback(r.Context(), p)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load settings, serving defaults")
	}
	writeJSON(w, settings)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var patch store.SettingsPatch
	if err := decode(r.Body, &patch); err != nil {
		s.logger.Warn().Err(err).Msg("Ignoring malformed settings payload")
		s.handleGetSettings(w, r)
		return
	}

	settings, err := s.settings.Update(r.Context(), patch)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to save settings")
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	s.logger.Info().
		Float64("threshold", settings.Threshold).
		Bool("enable_scrobble", settings.EnableScrobble).
		Bool("enable_now_playing", settings.EnableNowPlaying).
		Bool("enable_notifications", settings.EnableNotifications).
		Msg("Settings updated")
	writeJSON(w, settings)
}

// DeriveTrackID builds an identifier for tracks the page did not name.
func DeriveTrackID(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + " - " + strings.ToLower(strings.TrimSpace(title))
}

func decode(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func millis(v float64) uint64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(math.Round(v))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
