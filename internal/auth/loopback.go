package auth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const callbackPath = "/callback"

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>soundscribe - Last.fm Authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
{{if .OK}}<h1>Authorization Successful!</h1>
<p>You can close this window and return to soundscribe.</p>
{{else}}<h1>Authorization Failed</h1>
<p>{{.Message}}</p>
{{end}}</body>
</html>
`))

// LoopbackReceiver is a one-shot HTTP listener on 127.0.0.1 that Last.fm
// redirects the browser to.
type LoopbackReceiver struct {
	server   *http.Server
	listener net.Listener
	results  chan result
	done     chan struct{}
	logger   zerolog.Logger
}

// StartLoopback listens on 127.0.0.1:port (0 for ephemeral).
func StartLoopback(port int, logger zerolog.Logger) (*LoopbackReceiver, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	lr := &LoopbackReceiver{
		listener: listener,
		results:  make(chan result, 1),
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "auth").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, lr.handleCallback)
	lr.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(lr.done)
		if err := lr.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lr.logger.Warn().Err(err).Msg("Callback listener stopped")
		}
	}()

	return lr, nil
}

// CallbackURL returns the URL Last.fm should redirect to.
func (lr *LoopbackReceiver) CallbackURL() string {
	return "http://" + lr.listener.Addr().String() + callbackPath
}

// ReceiveToken waits for the first callback.
func (lr *LoopbackReceiver) ReceiveToken(ctx context.Context) (string, error) {
	return wait(ctx, lr.results)
}

func (lr *LoopbackReceiver) handleCallback(w http.ResponseWriter, r *http.Request) {
	token, err := TokenFromQuery(r.URL.Query())

	page := struct {
		OK      bool
		Message string
	}{OK: err == nil, Message: "No token received. Please try again."}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
	}
	if execErr := callbackPage.Execute(w, page); execErr != nil {
		lr.logger.Debug().Err(execErr).Msg("Failed to write callback page")
	}

	// Only the first callback counts.
	select {
	case lr.results <- result{token: token, err: err}:
	default:
	}
}

// Shutdown stops the listener.
func (lr *LoopbackReceiver) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = lr.server.Shutdown(ctx)
	<-lr.done
}
