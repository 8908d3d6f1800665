package lastfm

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// ScrobbleService provides scrobbling operations for the Last.fm API.
type ScrobbleService struct {
	client *Client
}

const (
	// MaxBatchSize is the maximum number of scrobbles allowed in a single batch.
	MaxBatchSize = 50
)

// UpdateNowPlaying updates the "now playing" status on Last.fm.
//
// This should be called when a track starts playing. It does not count
// as a scrobble and does not affect play counts.
//
// Example:
//
//	track := lastfm.Track{
//	    Artist: "The Beatles",
//	    Track:  "Yesterday",
//	}
//	_, err := client.Scrobble().UpdateNowPlaying(ctx, sessionKey, track)
func (s *ScrobbleService) UpdateNowPlaying(ctx context.Context, sessionKey string, track Track) (*NowPlayingResponse, error) {
	if sessionKey == "" {
		return nil, ErrNoSessionKey
	}

	params := map[string]string{
		"artist": track.Artist,
		"track":  track.Track,
		"sk":     sessionKey,
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.Duration > 0 {
		params["duration"] = strconv.Itoa(track.Duration)
	}

	resp, err := s.client.post(ctx, "track.updateNowPlaying", params)
	if err != nil {
		return nil, err
	}

	nowPlaying, err := unmarshalNowPlaying(resp)
	if err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse now playing response: %w", err)
	}

	return nowPlaying, nil
}

// Scrobble submits a single scrobble to Last.fm.
//
// timestamp is the time the track started playing.
func (s *ScrobbleService) Scrobble(ctx context.Context, sessionKey string, track Track, timestamp time.Time) (*ScrobbleResponse, error) {
	return s.ScrobbleBatch(ctx, sessionKey, []Scrobble{{Track: track, Timestamp: timestamp}})
}

// ScrobbleBatch submits multiple scrobbles to Last.fm in a single request.
//
// Up to 50 scrobbles can be submitted at once. If more than 50 scrobbles
// are provided, only the first 50 will be submitted. Parameters are sent
// with indexed keys (artist[0], track[0], ...).
func (s *ScrobbleService) ScrobbleBatch(ctx context.Context, sessionKey string, scrobbles []Scrobble) (*ScrobbleResponse, error) {
	if sessionKey == "" {
		return nil, ErrNoSessionKey
	}
	if len(scrobbles) == 0 {
		return &ScrobbleResponse{}, nil
	}
	if len(scrobbles) > MaxBatchSize {
		scrobbles = scrobbles[:MaxBatchSize]
	}

	params := map[string]string{
		"sk": sessionKey,
	}

	for i, scrobble := range scrobbles {
		idx := fmt.Sprintf("[%d]", i)
		params["artist"+idx] = scrobble.Track.Artist
		params["track"+idx] = scrobble.Track.Track
		params["timestamp"+idx] = strconv.FormatInt(scrobble.Timestamp.Unix(), 10)

		if scrobble.Track.Album != "" {
			params["album"+idx] = scrobble.Track.Album
		}
		if scrobble.Track.Duration > 0 {
			params["duration"+idx] = strconv.Itoa(scrobble.Track.Duration)
		}
	}

	resp, err := s.client.post(ctx, "track.scrobble", params)
	if err != nil {
		return nil, err
	}

	scrobbleResp, err := unmarshalScrobbles(resp)
	if err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse scrobble response: %w", err)
	}

	return scrobbleResp, nil
}

type xmlIgnoredMessage struct {
	Code int    `xml:"code,attr"`
	Text string `xml:",chardata"`
}

// nowPlayingResponse represents the XML response from track.updateNowPlaying.
type nowPlayingResponse struct {
	Artist         string            `xml:"nowplaying>artist"`
	Track          string            `xml:"nowplaying>track"`
	Album          string            `xml:"nowplaying>album"`
	IgnoredMessage xmlIgnoredMessage `xml:"nowplaying>ignoredMessage"`
}

// unmarshalNowPlaying parses the XML response from track.updateNowPlaying.
func unmarshalNowPlaying(data []byte) (*NowPlayingResponse, error) {
	// Wrap inner XML in root element for proper unmarshaling
	wrapped := []byte("<root>" + string(data) + "</root>")

	var resp nowPlayingResponse
	if err := xml.Unmarshal(wrapped, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal now playing response: %w", err)
	}

	return &NowPlayingResponse{
		Artist: resp.Artist,
		Track:  resp.Track,
		Album:  resp.Album,
		IgnoredMessage: IgnoredMessage{
			Code: resp.IgnoredMessage.Code,
			Text: resp.IgnoredMessage.Text,
		},
	}, nil
}

// scrobbleResponse represents the XML response from track.scrobble.
type scrobbleResponse struct {
	Scrobbles struct {
		Accepted  int `xml:"accepted,attr"`
		Ignored   int `xml:"ignored,attr"`
		Scrobbles []struct {
			Artist         string            `xml:"artist"`
			Track          string            `xml:"track"`
			Album          string            `xml:"album"`
			Timestamp      int64             `xml:"timestamp"`
			IgnoredMessage xmlIgnoredMessage `xml:"ignoredMessage"`
		} `xml:"scrobble"`
	} `xml:"scrobbles"`
}

// unmarshalScrobbles parses the XML response from track.scrobble.
func unmarshalScrobbles(data []byte) (*ScrobbleResponse, error) {
	wrapped := []byte("<root>" + string(data) + "</root>")

	var resp scrobbleResponse
	if err := xml.Unmarshal(wrapped, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scrobble response: %w", err)
	}

	result := &ScrobbleResponse{
		Accepted:  resp.Scrobbles.Accepted,
		Ignored:   resp.Scrobbles.Ignored,
		Scrobbles: make([]ScrobbleResult, len(resp.Scrobbles.Scrobbles)),
	}

	for i, s := range resp.Scrobbles.Scrobbles {
		result.Scrobbles[i] = ScrobbleResult{
			Artist:    s.Artist,
			Track:     s.Track,
			Album:     s.Album,
			Timestamp: s.Timestamp,
			IgnoredMessage: IgnoredMessage{
				Code: s.IgnoredMessage.Code,
				Text: s.IgnoredMessage.Text,
			},
		}
	}

	return result, nil
}
