package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestClampThreshold(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.0},
		{0, 0.01},
		{-3, 0.01},
		{0.005, 0.01},
		{0.5, 0.5},
		{1.0, 1.0},
		{0.01, 0.01},
		{math.NaN(), DefaultThreshold},
		{math.Inf(1), 1.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampThreshold(tt.in), "ClampThreshold(%v)", tt.in)
	}
}

func TestSettingsStore_Defaults(t *testing.T) {
	s := NewSettingsStore(openTestDB(t))

	got, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
	assert.Equal(t, 0.5, got.Threshold)
	assert.True(t, got.EnableScrobble)
	assert.True(t, got.EnableNowPlaying)
	assert.True(t, got.EnableNotifications)
}

func TestSettingsStore_UpdatePartial(t *testing.T) {
	s := NewSettingsStore(openTestDB(t))
	ctx := context.Background()

	got, err := s.Update(ctx, SettingsPatch{EnableNowPlaying: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.EnableNowPlaying)
	assert.True(t, got.EnableScrobble)
	assert.Equal(t, 0.5, got.Threshold)

	got, err = s.Update(ctx, SettingsPatch{Threshold: ptr(0.75)})
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.Threshold)
	assert.False(t, got.EnableNowPlaying, "earlier update must survive")

	stored, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestSettingsStore_ClampsOnWrite(t *testing.T) {
	s := NewSettingsStore(openTestDB(t))
	ctx := context.Background()

	got, err := s.Update(ctx, SettingsPatch{Threshold: ptr(1.5)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Threshold)

	got, err = s.Update(ctx, SettingsPatch{Threshold: ptr(0.0)})
	require.NoError(t, err)
	assert.Equal(t, 0.01, got.Threshold)

	got, err = s.Save(ctx, Settings{Threshold: 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Threshold)

	stored, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.Threshold)
}

func TestSettingsStore_PartialStoredJSONKeepsDefaults(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, settingsKey, `{"enable_scrobble":false}`))

	got, err := NewSettingsStore(db).Get(ctx)
	require.NoError(t, err)
	assert.False(t, got.EnableScrobble)
	assert.True(t, got.EnableNowPlaying)
	assert.Equal(t, DefaultThreshold, got.Threshold)
}

func TestSettingsStore_CorruptJSON(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Set(ctx, settingsKey, `{nope`))

	got, err := NewSettingsStore(db).Get(ctx)
	assert.Error(t, err)
	assert.Equal(t, DefaultSettings(), got)
}

func TestSettingsPatch_Empty(t *testing.T) {
	assert.True(t, SettingsPatch{}.Empty())
	assert.False(t, SettingsPatch{EnableScrobble: ptr(true)}.Empty())
}
