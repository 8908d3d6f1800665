package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmyers9/soundscribe/internal/store"
)

type fakeExchanger struct {
	gotCallback string
	gotToken    string
	err         error
}

func (f *fakeExchanger) AuthURL(callback string) string {
	f.gotCallback = callback
	return "https://www.last.fm/api/auth/?api_key=k&cb=" + callback
}

func (f *fakeExchanger) ExchangeSession(_ context.Context, token string) (store.Session, error) {
	f.gotToken = token
	if f.err != nil {
		return store.Session{}, f.err
	}
	return store.Session{Key: "sk-" + token, Username: "listener", LinkedAt: time.Now()}, nil
}

type memorySessions struct {
	saved   *store.Session
	deleted bool
}

func (m *memorySessions) Save(_ context.Context, s store.Session) error {
	m.saved = &s
	return nil
}

func (m *memorySessions) Delete(context.Context) error {
	m.saved = nil
	m.deleted = true
	return nil
}

func TestFlow_ConnectWithSchemeReceiver(t *testing.T) {
	exchanger := &fakeExchanger{}
	sessions := &memorySessions{}
	flow := NewFlow(exchanger, sessions, zerolog.Nop())

	receiver := NewSchemeReceiver("soundscribe")

	var shown string
	session, err := flow.Connect(context.Background(), receiver, func(authURL string) error {
		shown = authURL
		return receiver.Deliver("soundscribe://auth?token=abc")
	})
	require.NoError(t, err)

	assert.Equal(t, "soundscribe://auth", exchanger.gotCallback)
	assert.Contains(t, shown, "cb=soundscribe://auth")
	assert.Equal(t, "abc", exchanger.gotToken)
	assert.Equal(t, "sk-abc", session.Key)
	require.NotNil(t, sessions.saved)
	assert.Equal(t, "sk-abc", sessions.saved.Key)
}

func TestFlow_ConnectWithLoopbackReceiver(t *testing.T) {
	exchanger := &fakeExchanger{}
	sessions := &memorySessions{}
	flow := NewFlow(exchanger, sessions, zerolog.Nop())

	receiver := startTestLoopback(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := flow.Connect(ctx, receiver, func(string) error {
		go func() {
			resp, err := http.Get(receiver.CallbackURL() + "?token=loop")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-loop", session.Key)
	assert.Equal(t, receiver.CallbackURL(), exchanger.gotCallback)
}

func TestFlow_MissingTokenIsError(t *testing.T) {
	exchanger := &fakeExchanger{}
	sessions := &memorySessions{}
	flow := NewFlow(exchanger, sessions, zerolog.Nop())

	receiver := NewSchemeReceiver("soundscribe")
	_, err := flow.Connect(context.Background(), receiver, func(string) error {
		_ = receiver.Deliver("soundscribe://auth")
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Empty(t, exchanger.gotToken, "exchange must not run without a token")
	assert.Nil(t, sessions.saved)

	_, err = flow.Complete(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestFlow_PresentErrorAbortsConnect(t *testing.T) {
	exchanger := &fakeExchanger{}
	sessions := &memorySessions{}
	flow := NewFlow(exchanger, sessions, zerolog.Nop())

	receiver := NewSchemeReceiver("soundscribe")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := flow.Connect(ctx, receiver, func(string) error {
		return receiver.Deliver("https://www.last.fm/?token=abc")
	})
	assert.ErrorIs(t, err, ErrSchemeMismatch)
	assert.Less(t, time.Since(start), time.Second, "connect must not wait for a token")
	assert.Empty(t, exchanger.gotToken)
	assert.Nil(t, sessions.saved)
}

func TestFlow_ExchangeFailure(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("status 403")}
	sessions := &memorySessions{}
	flow := NewFlow(exchanger, sessions, zerolog.Nop())

	_, err := flow.Complete(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Nil(t, sessions.saved)
}

func TestFlow_Disconnect(t *testing.T) {
	sessions := &memorySessions{saved: &store.Session{Key: "sk"}}
	flow := NewFlow(&fakeExchanger{}, sessions, zerolog.Nop())

	require.NoError(t, flow.Disconnect(context.Background()))
	assert.True(t, sessions.deleted)
	assert.Nil(t, sessions.saved)
}
