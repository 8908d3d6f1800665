package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const sessionKey = "session"

// Session is the connected Last.fm account.
type Session struct {
	Key      string    `json:"session_key"`
	Username string    `json:"username"`
	LinkedAt time.Time `json:"linked_at"`
}

// SessionStore persists the Session through a KV.
type SessionStore struct {
	kv KV
}

// NewSessionStore returns a SessionStore persisting to kv.
func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Load returns the stored session, or nil if the user never connected
// (or disconnected).
func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil //nolint:nilnil // nil session means not connected
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Key == "" {
		return nil, nil //nolint:nilnil // a keyless record is treated as absent
	}
	return &session, nil
}

// Save stores session, stamping LinkedAt if unset.
func (s *SessionStore) Save(ctx context.Context, session Session) error {
	if session.Key == "" {
		return fmt.Errorf("refusing to store session without key")
	}
	if session.LinkedAt.IsZero() {
		session.LinkedAt = time.Now()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.kv.Set(ctx, sessionKey, string(data))
}

// Delete removes the stored session (disconnect).
func (s *SessionStore) Delete(ctx context.Context) error {
	return s.kv.Delete(ctx, sessionKey)
}
