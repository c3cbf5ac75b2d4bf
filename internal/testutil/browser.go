package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Browser follows the authorization URL and returns the redirect to the
// client, as an authentication session would after the user signed in.
type Browser struct {
	Client *http.Client
	// Err is returned instead of opening the URL, to simulate cancellation.
	Err error

	mu     sync.Mutex
	opened []OpenedURL
}

type OpenedURL struct {
	URL         *url.URL
	RedirectURI string
	Ephemeral   bool
}

func NewBrowser() *Browser {
	return &Browser{
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Opened returns every URL given to Open, in order.
func (b *Browser) Opened() []OpenedURL {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpenedURL(nil), b.opened...)
}

func (b *Browser) Open(ctx context.Context, authorizationURL, redirectURI string, ephemeral bool) (*url.URL, error) {
	u, err := url.Parse(authorizationURL)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.opened = append(b.opened, OpenedURL{URL: u, RedirectURI: redirectURI, Ephemeral: ephemeral})
	b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizationURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("authorization endpoint answered %d", resp.StatusCode)
	}
	location, err := resp.Location()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(location.String(), redirectURI) {
		return nil, errors.New("redirected to an unexpected uri")
	}
	return location, nil
}
