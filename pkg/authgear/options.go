package authgear

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/credstore"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/keystore"
)

const (
	DefaultName     = "default"
	DefaultPlatform = "ios"
)

type Option func(*Container) error

// WithName sets the namespace of the stored credentials. Containers with
// different names never share credentials.
func WithName(name string) Option {
	return func(c *Container) error {
		if name == "" {
			return errors.New("authgear: empty name")
		}
		c.name = name
		return nil
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Container) error {
		c.httpClient = client
		return nil
	}
}

// WithLogger sets a logger that is used
// in case the request context does not contain a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) error {
		c.logger = logger
		return nil
	}
}

func WithKeyStore(store keystore.KeyStore) Option {
	return func(c *Container) error {
		c.keyStore = keystore.WithErrorMapping(store)
		return nil
	}
}

func WithCredentialStore(store credstore.Store) Option {
	return func(c *Container) error {
		c.credStore = store
		return nil
	}
}

func WithAuthenticationSession(session AuthenticationSession) Option {
	return func(c *Container) error {
		c.authSession = session
		return nil
	}
}

// App2AppOptions configures the app2app handoff.
// AuthorizationEndpoint is where other apps send their requests to this app.
// OpenURL hands a URL to the other app.
type App2AppOptions struct {
	Enabled               bool
	AuthorizationEndpoint string
	OpenURL               func(ctx context.Context, u *url.URL) error
}

func WithApp2AppOptions(opts App2AppOptions) Option {
	return func(c *Container) error {
		if opts.Enabled && opts.OpenURL == nil {
			return errors.New("authgear: app2app enabled without OpenURL")
		}
		c.app2app = opts
		return nil
	}
}

// WithThirdParty marks the client as third party client,
// it is then not granted the full access scope.
func WithThirdParty() Option {
	return func(c *Container) error {
		c.thirdParty = true
		return nil
	}
}

func WithDelegate(delegate Delegate) Option {
	return func(c *Container) error {
		c.delegate = delegate
		return nil
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *Container) error {
		c.now = now
		return nil
	}
}

// WithDeviceInfo sets the `device_info` claim of the assertions.
func WithDeviceInfo(info map[string]any) Option {
	return func(c *Container) error {
		c.deviceInfo = info
		return nil
	}
}

// WithPlatform sets the `x_platform` parameter of authorization requests.
func WithPlatform(platform string) Option {
	return func(c *Container) error {
		c.platform = platform
		return nil
	}
}
