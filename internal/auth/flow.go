package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/soundscribe/internal/store"
)

// Exchanger trades tokens for sessions.
type Exchanger interface {
	AuthURL(callback string) string
	ExchangeSession(ctx context.Context, token string) (store.Session, error)
}

// SessionStore persists the connected account.
type SessionStore interface {
	Save(ctx context.Context, session store.Session) error
	Delete(ctx context.Context) error
}

// Flow runs the connect and disconnect actions.
type Flow struct {
	exchanger Exchanger
	sessions  SessionStore
	logger    zerolog.Logger
}

// NewFlow creates a Flow.
func NewFlow(exchanger Exchanger, sessions SessionStore, logger zerolog.Logger) *Flow {
	return &Flow{
		exchanger: exchanger,
		sessions:  sessions,
		logger:    logger.With().Str("component", "auth").Logger(),
	}
}

// Connect shows the authorization URL through present, waits for the
// receiver to yield a token, exchanges it and stores the session. An
// error from present aborts the connect without waiting.
func (f *Flow) Connect(ctx context.Context, receiver TokenReceiver, present func(authURL string) error) (store.Session, error) {
	authURL := f.exchanger.AuthURL(receiver.CallbackURL())
	if present != nil {
		if err := present(authURL); err != nil {
			return store.Session{}, err
		}
	}

	token, err := receiver.ReceiveToken(ctx)
	if err != nil {
		return store.Session{}, fmt.Errorf("failed to receive authorization token: %w", err)
	}

	return f.Complete(ctx, token)
}

// Complete exchanges an already received token and stores the session.
func (f *Flow) Complete(ctx context.Context, token string) (store.Session, error) {
	if token == "" {
		return store.Session{}, ErrMissingToken
	}

	session, err := f.exchanger.ExchangeSession(ctx, token)
	if err != nil {
		return store.Session{}, err
	}

	if err := f.sessions.Save(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("failed to save session: %w", err)
	}

	f.logger.Info().Str("username", session.Username).Msg("Connected Last.fm account")
	return session, nil
}

// Disconnect forgets the stored session.
func (f *Flow) Disconnect(ctx context.Context) error {
	if err := f.sessions.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	f.logger.Info().Msg("Disconnected Last.fm account")
	return nil
}
