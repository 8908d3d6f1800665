package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// AuthService provides authentication operations for the Last.fm API.
type AuthService struct {
	client *Client
}

// WebAuthURL returns the URL where users authorize the application.
//
// Once the user grants access, Last.fm redirects the browser to callback
// with a token query parameter. An empty callback leaves the redirect to
// whatever is registered for the API key.
//
// Example:
//
//	authURL := client.Auth().WebAuthURL("soundscribe://auth")
//	fmt.Println("Please visit:", authURL)
func (a *AuthService) WebAuthURL(callback string) string {
	query := url.Values{}
	query.Set("api_key", a.client.apiKey)
	if callback != "" {
		query.Set("cb", callback)
	}
	return a.client.authURL + "?" + query.Encode()
}

// sessionResponse is the JSON body of a successful auth.getSession call.
type sessionResponse struct {
	Session *struct {
		Name       string          `json:"name"`
		Key        string          `json:"key"`
		Subscriber json.RawMessage `json:"subscriber"`
	} `json:"session"`
}

// GetSession exchanges an authorized token for a session key.
//
// The session key does not expire; store it and pass it to every
// scrobbling call.
//
// Example:
//
//	session, err := client.Auth().GetSession(ctx, token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Store session.Key for future use
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	body, err := a.client.get(ctx, "auth.getSession", map[string]string{
		"token": token,
	})
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse session response: %w", err)
	}
	if resp.Session == nil || resp.Session.Key == "" {
		return nil, fmt.Errorf("lastfm: malformed session response: missing session key")
	}

	subscriber := strings.Trim(string(resp.Session.Subscriber), `"`)

	return &Session{
		Key:        resp.Session.Key,
		Username:   resp.Session.Name,
		Subscriber: subscriber == "1",
	}, nil
}
