package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
)

const settingsKey = "settings"

// Threshold bounds. Every write clamps into [MinThreshold, MaxThreshold].
const (
	DefaultThreshold = 0.5
	MinThreshold     = 0.01
	MaxThreshold     = 1.0
)

// Settings is the user-facing scrobbling configuration.
type Settings struct {
	Threshold           float64 `json:"threshold"`
	EnableScrobble      bool    `json:"enable_scrobble"`
	EnableNowPlaying    bool    `json:"enable_now_playing"`
	EnableNotifications bool    `json:"enable_notifications"`
}

// DefaultSettings returns the settings used before anything is stored.
func DefaultSettings() Settings {
	return Settings{
		Threshold:           DefaultThreshold,
		EnableScrobble:      true,
		EnableNowPlaying:    true,
		EnableNotifications: true,
	}
}

// SettingsPatch is a partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	Threshold           *float64 `json:"threshold,omitempty"`
	EnableScrobble      *bool    `json:"enable_scrobble,omitempty"`
	EnableNowPlaying    *bool    `json:"enable_now_playing,omitempty"`
	EnableNotifications *bool    `json:"enable_notifications,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Threshold == nil && p.EnableScrobble == nil &&
		p.EnableNowPlaying == nil && p.EnableNotifications == nil
}

// Apply returns s with the fields present in p replaced.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Threshold != nil {
		s.Threshold = *p.Threshold
	}
	if p.EnableScrobble != nil {
		s.EnableScrobble = *p.EnableScrobble
	}
	if p.EnableNowPlaying != nil {
		s.EnableNowPlaying = *p.EnableNowPlaying
	}
	if p.EnableNotifications != nil {
		s.EnableNotifications = *p.EnableNotifications
	}
	s.Threshold = ClampThreshold(s.Threshold)
	return s
}

// ClampThreshold limits t to [MinThreshold, MaxThreshold]. NaN maps to
// DefaultThreshold.
func ClampThreshold(t float64) float64 {
	if math.IsNaN(t) {
		return DefaultThreshold
	}
	return math.Min(MaxThreshold, math.Max(MinThreshold, t))
}

// SettingsStore reads and writes Settings through a KV. Updates are
// serialised so concurrent partial updates do not lose fields.
type SettingsStore struct {
	mu sync.Mutex
	kv KV
}

// NewSettingsStore returns a SettingsStore persisting to kv.
func NewSettingsStore(kv KV) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Get returns the stored settings, or the defaults if none were saved.
func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	raw, err := s.kv.Get(ctx, settingsKey)
	if errors.Is(err, ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), err
	}

	// Missing fields keep their defaults.
	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to decode settings: %w", err)
	}
	settings.Threshold = ClampThreshold(settings.Threshold)
	return settings, nil
}

// Save replaces the stored settings. The threshold is clamped first.
func (s *SettingsStore) Save(ctx context.Context, settings Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, settings)
}

// Update applies patch to the stored settings and returns the result.
func (s *SettingsStore) Update(ctx context.Context, patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx)
	if err != nil {
		return current, err
	}
	return s.save(ctx, patch.Apply(current))
}

func (s *SettingsStore) save(ctx context.Context, settings Settings) (Settings, error) {
	settings.Threshold = ClampThreshold(settings.Threshold)

	data, err := json.Marshal(settings)
	if err != nil {
		return settings, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, settingsKey, string(data)); err != nil {
		return settings, err
	}
	return settings, nil
}
