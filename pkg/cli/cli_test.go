package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRedirectURI(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8765/oauth2/callback", RedirectURI(8765, "/oauth2/callback"))
}

func TestParseLoopback(t *testing.T) {
	tests := []struct {
		uri     string
		wantErr bool
	}{
		{"http://127.0.0.1:8765/cb", false},
		{"http://localhost:8765/cb", false},
		{"http://[::1]:8765", false},
		{"https://127.0.0.1:8765/cb", true},
		{"http://127.0.0.1/cb", true},
		{"http://example.com:8765/cb", true},
		{"com.example.app://host/cb", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			_, err := parseLoopback(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotLoopback)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoopbackSession_Open(t *testing.T) {
	redirectURI := RedirectURI(freePort(t), "/oauth2/callback")
	pages := make(chan string, 1)
	s := NewLoopbackSession()
	s.Opener = func(authorizationURL string) error {
		assert.Equal(t, "https://auth.example.com/oauth2/authorize?client_id=c", authorizationURL)
		go func() {
			resp, err := http.Get(redirectURI + "?code=abc&state=s")
			if err != nil {
				pages <- err.Error()
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			pages <- string(body)
		}()
		return nil
	}

	callback, err := s.Open(context.Background(), "https://auth.example.com/oauth2/authorize?client_id=c", redirectURI, true)
	require.NoError(t, err)
	assert.Equal(t, "abc", callback.Query().Get("code"))
	assert.Equal(t, "s", callback.Query().Get("state"))
	assert.Equal(t, redirectURI, callback.Scheme+"://"+callback.Host+callback.Path)
	select {
	case page := <-pages:
		assert.Contains(t, page, "Success")
	case <-time.After(time.Second):
		t.Fatal("no callback page")
	}
}

func TestLoopbackSession_Open_canceled(t *testing.T) {
	redirectURI := RedirectURI(freePort(t), "/cb")
	s := NewLoopbackSession()
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		s.Opener = func(string) error {
			cancel()
			return nil
		}
		_, err := s.Open(ctx, "https://auth.example.com", redirectURI, false)
		assert.ErrorIs(t, err, context.Canceled)

		// The port is free as soon as Open returns.
		l, err := net.Listen("tcp", callbackHost(t, redirectURI))
		require.NoError(t, err, "attempt %d", i)
		require.NoError(t, l.Close())
	}
}

func TestLoopbackSession_Open_openerError(t *testing.T) {
	s := NewLoopbackSession()
	s.Opener = func(string) error { return assert.AnError }
	_, err := s.Open(context.Background(), "https://auth.example.com", RedirectURI(freePort(t), "/cb"), false)
	assert.ErrorIs(t, err, assert.AnError)
}

func callbackHost(t *testing.T, redirectURI string) string {
	t.Helper()
	u, err := parseLoopback(redirectURI)
	require.NoError(t, err)
	return u.Host
}
