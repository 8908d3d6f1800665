// Package lastfm provides a client for the Last.fm API 2.0.
//
// This package implements the subset of the Last.fm API a desktop
// scrobbler needs: exchanging an authorization token for a session,
// announcing the track that is currently playing, and submitting
// scrobbles. Every call is signed with Sign.
//
// Example usage:
//
//	import "github.com/jfmyers9/soundscribe/pkg/lastfm"
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:    "your-api-key",
//	    APISecret: "your-api-secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Authorize at:", client.Auth().WebAuthURL("http://127.0.0.1:7777/callback"))
//
// # Authentication
//
// Desktop applications use the web authorization flow with a callback:
//
//  1. Send the user to WebAuthURL with a callback the application listens on
//  2. Last.fm redirects to the callback with a one-time token query parameter
//  3. Exchange the token for a session with GetSession
//  4. Store the session key and pass it to every scrobbling call
//
// Example:
//
//	fmt.Println("Please visit:", client.Auth().WebAuthURL(callbackURL))
//	token := <-tokens
//
//	session, err := client.Auth().GetSession(ctx, token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Store session.Key and session.Username for future use
//
// # Scrobbling
//
// With a session key, announce the current track and scrobble it once it
// has been listened to long enough:
//
//	track := lastfm.Track{
//	    Artist:   "The Beatles",
//	    Track:    "Yesterday",
//	    Duration: 125,
//	}
//	_, err := client.Scrobble().UpdateNowPlaying(ctx, session.Key, track)
//
//	_, err = client.Scrobble().Scrobble(ctx, session.Key, track, startedAt)
//
// # Error Handling
//
// API failures are reported as *Error, non-200 HTTP responses as *HTTPError:
//
//	_, err := client.Scrobble().Scrobble(ctx, sk, track, startedAt)
//	var lastfmErr *lastfm.Error
//	if errors.As(err, &lastfmErr) && lastfmErr.Code == lastfm.ErrCodeInvalidSessionKey {
//	    // ask the user to reconnect
//	}
//
// The client never retries. Callers bound each call with a context deadline.
//
// For more information about the Last.fm API:
// https://www.last.fm/api/scrobbling
package lastfm
