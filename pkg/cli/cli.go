// Package cli provides an AuthenticationSession for command line tools.
// It serves the redirect URI on the loopback interface and opens the
// authorization URL in the system browser.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zitadel/logging"
)

const successPage = "<p><strong>Success!</strong></p><p>You are authenticated and can now return to the CLI.</p>"

var ErrNotLoopback = errors.New("cli: redirect uri is not a loopback http uri")

// LoopbackSession opens the authorization URL with Opener and waits for
// the browser to come back to the loopback redirect URI.
type LoopbackSession struct {
	// Opener shows a URL to the user, OpenBrowser by default.
	Opener func(rawURL string) error
	// ShutdownTimeout bounds how long the callback server drains.
	ShutdownTimeout time.Duration
}

func NewLoopbackSession() *LoopbackSession {
	return &LoopbackSession{
		Opener:          OpenBrowser,
		ShutdownTimeout: 5 * time.Second,
	}
}

// RedirectURI returns the loopback redirect URI for port and path.
func RedirectURI(port int, path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", fmt.Sprint(port)),
		Path:   path,
	}
	return u.String()
}

// Open serves redirectURI until the first request to its path arrives and
// returns the full URL of that request. ephemeral is ignored, the system
// browser is always shared.
func (s *LoopbackSession) Open(ctx context.Context, authorizationURL, redirectURI string, _ bool) (*url.URL, error) {
	redirect, err := parseLoopback(redirectURI)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("cli: listening on %s: %w", redirect.Host, err)
	}

	callbacks := make(chan *url.URL, 1)
	r := chi.NewRouter()
	r.Get(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		callback := *r.URL
		callback.Scheme = redirect.Scheme
		callback.Host = redirect.Host
		select {
		case callbacks <- &callback:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(successPage))
	})
	server := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if logger, ok := logging.FromContext(ctx); ok {
				logger.ErrorContext(ctx, "callback server stopped", slog.Any("error", err))
			}
		}
	}()
	defer s.shutdown(ctx, server, listener)

	if err := s.Opener(authorizationURL); err != nil {
		return nil, fmt.Errorf("cli: opening browser: %w", err)
	}
	if logger, ok := logging.FromContext(ctx); ok {
		logger.InfoContext(ctx, "waiting for the browser", slog.String("redirect_uri", redirectURI))
	}

	select {
	case callback := <-callbacks:
		return callback, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops server and closes listener. Serve may not have taken
// ownership of listener yet, so it is closed here too.
func (s *LoopbackSession) shutdown(ctx context.Context, server *http.Server, listener net.Listener) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
	}
	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		if logger, ok := logging.FromContext(ctx); ok {
			logger.WarnContext(ctx, "closing callback listener", slog.Any("error", err))
		}
	}
}

func parseLoopback(redirectURI string) (*url.URL, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, ErrNotLoopback
	}
	switch host := u.Hostname(); host {
	case "localhost":
	default:
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, ErrNotLoopback
		}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}
