package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// SchemeReceiver receives the token through a custom URL scheme such as
// soundscribe://auth?token=... handed to the process by the OS.
type SchemeReceiver struct {
	scheme  string
	results chan result
}

// NewSchemeReceiver returns a receiver for URLs of the given scheme.
func NewSchemeReceiver(scheme string) *SchemeReceiver {
	return &SchemeReceiver{
		scheme:  strings.ToLower(strings.TrimSuffix(scheme, "://")),
		results: make(chan result, 1),
	}
}

// CallbackURL returns the scheme URL Last.fm should redirect to.
func (sr *SchemeReceiver) CallbackURL() string {
	return sr.scheme + "://auth"
}

// Deliver hands a scheme URL to the receiver. The outcome (token or
// ErrMissingToken) is what ReceiveToken returns; URLs for another scheme
// are rejected without being consumed.
func (sr *SchemeReceiver) Deliver(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("auth: invalid callback URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, sr.scheme) {
		return fmt.Errorf("%w: got %q, want %q", ErrSchemeMismatch, u.Scheme, sr.scheme)
	}

	token, err := TokenFromQuery(u.Query())
	select {
	case sr.results <- result{token: token, err: err}:
	default:
	}
	return err
}

// ReceiveToken waits for the first delivered URL.
func (sr *SchemeReceiver) ReceiveToken(ctx context.Context) (string, error) {
	return wait(ctx, sr.results)
}
