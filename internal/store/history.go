package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Submission kinds recorded in the history.
const (
	KindNowPlaying = "now_playing"
	KindScrobble   = "scrobble"
)

// History is a log of outbound submissions. Entries are written once and
// never retried; failed submissions keep their error text.
type History struct {
	db *sql.DB
}

// Submission is one outbound call and its outcome.
type Submission struct {
	ID        int64
	Kind      string
	TrackID   string
	TrackName string
	Artist    string
	Album     string
	Duration  time.Duration
	Timestamp time.Time // Track start time sent to Last.fm
	Error     string    // Empty on success
	CreatedAt time.Time
}

// Record appends a submission to the history.
func (h *History) Record(ctx context.Context, s Submission) (int64, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO submissions (kind, track_id, track_name, artist, album, duration, timestamp, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := h.db.ExecContext(ctx, query,
		s.Kind,
		s.TrackID,
		s.TrackName,
		s.Artist,
		s.Album,
		int64(s.Duration.Seconds()),
		s.Timestamp.Unix(),
		nullString(s.Error),
		s.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}

	return id, nil
}

// Recent returns the newest submissions first. limit <= 0 returns all.
func (h *History) Recent(ctx context.Context, limit int) ([]Submission, error) {
	query := `
		SELECT id, kind, track_id, track_name, artist, COALESCE(album, ''), duration, timestamp, COALESCE(error, ''), created_at
		FROM submissions
		ORDER BY created_at DESC, id DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []Submission
	for rows.Next() {
		var s Submission
		var durationSecs, timestampUnix, createdUnix int64

		err := rows.Scan(
			&s.ID,
			&s.Kind,
			&s.TrackID,
			&s.TrackName,
			&s.Artist,
			&s.Album,
			&durationSecs,
			&timestampUnix,
			&s.Error,
			&createdUnix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}

		s.Duration = time.Duration(durationSecs) * time.Second
		s.Timestamp = time.Unix(timestampUnix, 0)
		s.CreatedAt = time.Unix(createdUnix, 0)

		submissions = append(submissions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// Cleanup removes submissions recorded before now-olderThan.
func (h *History) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	result, err := h.db.ExecContext(ctx, `DELETE FROM submissions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup submissions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
