// Package auth connects a Last.fm account. Last.fm hands a one-time
// token back to the desktop either through a loopback HTTP callback or
// through a custom URL scheme; both are a TokenReceiver, and Flow trades
// the token for a session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMissingToken is returned when a callback arrives without a token.
	ErrMissingToken = errors.New("auth: callback did not include a token")

	// ErrSchemeMismatch is returned when a URL for another scheme is delivered.
	ErrSchemeMismatch = errors.New("auth: callback URL has an unexpected scheme")
)

// TokenReceiver waits for the token Last.fm sends after the user grants access.
type TokenReceiver interface {
	// CallbackURL is passed to Last.fm as the cb parameter.
	CallbackURL() string
	// ReceiveToken blocks until a callback arrives or ctx is done.
	ReceiveToken(ctx context.Context) (string, error)
}

// result is what a callback delivers to a waiting ReceiveToken.
type result struct {
	token string
	err   error
}

// TokenFromQuery extracts the token parameter.
func TokenFromQuery(q url.Values) (string, error) {
	token := strings.TrimSpace(q.Get("token"))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// TokenFromURL extracts the token parameter from a full callback URL.
func TokenFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("auth: invalid callback URL: %w", err)
	}
	return TokenFromQuery(u.Query())
}

func wait(ctx context.Context, ch <-chan result) (string, error) {
	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
