package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:    "test-api-key",
		APISecret: "test-secret",
		BaseURL:   server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// TestScrobbleService_UpdateNowPlaying tests the UpdateNowPlaying method.
func TestScrobbleService_UpdateNowPlaying(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		statusCode  int
		track       Track
		wantErr     bool
		errContains string
	}{
		{
			name: "success",
			response: `<?xml version="1.0" encoding="utf-8"?>
<lfm status="ok">
	<nowplaying>
		<artist corrected="0">The Beatles</artist>
		<track corrected="0">Yesterday</track>
		<album corrected="0">Help!</album>
		<ignoredMessage code="0"></ignoredMessage>
	</nowplaying>
</lfm>`,
			statusCode: http.StatusOK,
			track: Track{
				Artist:   "The Beatles",
				Track:    "Yesterday",
				Album:    "Help!",
				Duration: 125,
			},
		},
		{
			name: "api error - invalid session key",
			response: `<?xml version="1.0" encoding="utf-8"?>
<lfm status="failed">
	<error code="9">Invalid session key</error>
</lfm>`,
			statusCode: http.StatusOK,
			track: Track{
				Artist: "The Beatles",
				Track:  "Yesterday",
			},
			wantErr:     true,
			errContains: "error 9",
		},
		{
			name:        "service unavailable",
			response:    "down",
			statusCode:  http.StatusServiceUnavailable,
			track:       Track{Artist: "A", Track: "B"},
			wantErr:     true,
			errContains: "503",
		},
		{
			name:        "malformed body",
			response:    "{not xml",
			statusCode:  http.StatusOK,
			track:       Track{Artist: "A", Track: "B"},
			wantErr:     true,
			errContains: "failed to parse XML response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST request, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
					t.Errorf("expected form content type, got %s", ct)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("failed to parse form: %v", err)
				}

				if method := r.FormValue("method"); method != "track.updateNowPlaying" {
					t.Errorf("expected method track.updateNowPlaying, got %s", method)
				}
				if artist := r.FormValue("artist"); artist != tt.track.Artist {
					t.Errorf("expected artist %s, got %s", tt.track.Artist, artist)
				}
				if track := r.FormValue("track"); track != tt.track.Track {
					t.Errorf("expected track %s, got %s", tt.track.Track, track)
				}
				if sk := r.FormValue("sk"); sk != "test-session-key" {
					t.Errorf("expected sk test-session-key, got %s", sk)
				}
				if tt.track.Duration > 0 {
					if duration := r.FormValue("duration"); duration != fmt.Sprintf("%d", tt.track.Duration) {
						t.Errorf("expected duration %d, got %s", tt.track.Duration, duration)
					}
				}
				if r.FormValue("format") != "" {
					t.Error("expected no format parameter on POST calls")
				}

				params := make(map[string]string)
				for k := range r.PostForm {
					params[k] = r.PostForm.Get(k)
				}
				if sig := r.FormValue("api_sig"); sig != Sign(params, "test-secret") {
					t.Errorf("api_sig %s does not match request parameters", sig)
				}

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.response))
			})

			resp, err := client.Scrobble().UpdateNowPlaying(context.Background(), "test-session-key", tt.track)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error to contain %q, got %v", tt.errContains, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Artist != tt.track.Artist {
				t.Errorf("expected artist %s, got %s", tt.track.Artist, resp.Artist)
			}
			if resp.Track != tt.track.Track {
				t.Errorf("expected track %s, got %s", tt.track.Track, resp.Track)
			}
		})
	}
}

// TestScrobbleService_Scrobble tests the Scrobble method (single scrobble).
func TestScrobbleService_Scrobble(t *testing.T) {
	startedAt := time.Unix(1700000000, 0)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}

		if method := r.FormValue("method"); method != "track.scrobble" {
			t.Errorf("expected method track.scrobble, got %s", method)
		}
		if artist := r.FormValue("artist[0]"); artist != "The Beatles" {
			t.Errorf("expected artist[0] The Beatles, got %s", artist)
		}
		if track := r.FormValue("track[0]"); track != "Yesterday" {
			t.Errorf("expected track[0] Yesterday, got %s", track)
		}
		if duration := r.FormValue("duration[0]"); duration != "125" {
			t.Errorf("expected duration[0] 125, got %s", duration)
		}
		if ts := r.FormValue("timestamp[0]"); ts != "1700000000" {
			t.Errorf("expected timestamp[0] 1700000000, got %s", ts)
		}

		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<lfm status="ok">
	<scrobbles accepted="1" ignored="0">
		<scrobble>
			<artist corrected="0">The Beatles</artist>
			<track corrected="0">Yesterday</track>
			<album corrected="0"></album>
			<timestamp>1700000000</timestamp>
			<ignoredMessage code="0"></ignoredMessage>
		</scrobble>
	</scrobbles>
</lfm>`))
	})

	track := Track{Artist: "The Beatles", Track: "Yesterday", Duration: 125}
	resp, err := client.Scrobble().Scrobble(context.Background(), "test-session-key", track, startedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", resp.Accepted)
	}
	if resp.Ignored != 0 {
		t.Errorf("expected 0 ignored, got %d", resp.Ignored)
	}
	if len(resp.Scrobbles) != 1 {
		t.Fatalf("expected 1 scrobble result, got %d", len(resp.Scrobbles))
	}
	if resp.Scrobbles[0].Timestamp != 1700000000 {
		t.Errorf("expected timestamp 1700000000, got %d", resp.Scrobbles[0].Timestamp)
	}
}

func TestScrobbleService_ScrobbleIgnored(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<lfm status="ok">
	<scrobbles accepted="0" ignored="1">
		<scrobble>
			<artist>A</artist>
			<track>B</track>
			<timestamp>1</timestamp>
			<ignoredMessage code="3">Timestamp too old</ignoredMessage>
		</scrobble>
	</scrobbles>
</lfm>`))
	})

	resp, err := client.Scrobble().Scrobble(context.Background(), "sk", Track{Artist: "A", Track: "B"}, time.Unix(1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Ignored != 1 {
		t.Fatalf("expected 1 ignored, got %d", resp.Ignored)
	}
	if msg := resp.Scrobbles[0].IgnoredMessage; msg.Code != 3 || msg.Text != "Timestamp too old" {
		t.Errorf("unexpected ignored message %+v", msg)
	}
}

func TestScrobbleService_ScrobbleBatch(t *testing.T) {
	var gotCount int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		for k := range r.PostForm {
			if strings.HasPrefix(k, "track[") {
				gotCount++
			}
		}
		_, _ = w.Write([]byte(`<lfm status="ok"><scrobbles accepted="50" ignored="0"></scrobbles></lfm>`))
	})

	scrobbles := make([]Scrobble, MaxBatchSize+5)
	for i := range scrobbles {
		scrobbles[i] = Scrobble{
			Track:     Track{Artist: "Artist", Track: fmt.Sprintf("Track %d", i)},
			Timestamp: time.Unix(int64(1700000000+i), 0),
		}
	}

	resp, err := client.Scrobble().ScrobbleBatch(context.Background(), "sk", scrobbles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCount != MaxBatchSize {
		t.Errorf("expected %d tracks submitted, got %d", MaxBatchSize, gotCount)
	}
	if resp.Accepted != MaxBatchSize {
		t.Errorf("expected %d accepted, got %d", MaxBatchSize, resp.Accepted)
	}
}

func TestScrobbleService_RequiresSessionKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a session key")
	})

	ctx := context.Background()
	track := Track{Artist: "A", Track: "B"}

	if _, err := client.Scrobble().UpdateNowPlaying(ctx, "", track); !errors.Is(err, ErrNoSessionKey) {
		t.Errorf("UpdateNowPlaying: expected ErrNoSessionKey, got %v", err)
	}
	if _, err := client.Scrobble().Scrobble(ctx, "", track, time.Now()); !errors.Is(err, ErrNoSessionKey) {
		t.Errorf("Scrobble: expected ErrNoSessionKey, got %v", err)
	}
}

func TestError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{ErrCodeServiceOffline, true},
		{ErrCodeTempUnavailable, true},
		{ErrCodeRateLimitExceeded, true},
		{ErrCodeInvalidSessionKey, false},
		{ErrCodeInvalidSignature, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code %d", tt.code), func(t *testing.T) {
			e := &Error{Code: tt.code}
			if e.Temporary() != tt.want {
				t.Errorf("Temporary() = %v, want %v", e.Temporary(), tt.want)
			}
		})
	}
}
