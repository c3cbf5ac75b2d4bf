package client

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

// Endpoints are the server endpoints used by a client.
type Endpoints struct {
	AuthorizationURL string
	TokenURL         string
	UserinfoURL      string
	RevokeURL        string
	ChallengeURL     string
}

func GetEndpoints(endpoint string, discoveryConfig *oidc.DiscoveryConfiguration) Endpoints {
	return Endpoints{
		AuthorizationURL: discoveryConfig.AuthorizationEndpoint,
		TokenURL:         discoveryConfig.TokenEndpoint,
		UserinfoURL:      discoveryConfig.UserinfoEndpoint,
		RevokeURL:        discoveryConfig.RevocationEndpoint,
		ChallengeURL:     strings.TrimSuffix(endpoint, "/") + oidc.ChallengeEndpoint,
	}
}

// EndpointResolver discovers the endpoints of a server once.
// A successful discovery is kept for the lifetime of the resolver,
// a failed one is not, so the next call fetches again.
// Concurrent first calls share a single request.
type EndpointResolver struct {
	endpoint   string
	httpClient *http.Client

	group singleflight.Group

	mu        sync.RWMutex
	endpoints *Endpoints
}

func NewEndpointResolver(endpoint string, httpClient *http.Client) *EndpointResolver {
	return &EndpointResolver{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

func (r *EndpointResolver) Endpoint() string {
	return r.endpoint
}

func (r *EndpointResolver) Resolve(ctx context.Context) (*Endpoints, error) {
	r.mu.RLock()
	endpoints := r.endpoints
	r.mu.RUnlock()
	if endpoints != nil {
		return endpoints, nil
	}

	v, err, _ := r.group.Do(r.endpoint, func() (any, error) {
		config, err := Discover(ctx, r.endpoint, r.httpClient)
		if err != nil {
			return nil, err
		}
		endpoints := GetEndpoints(r.endpoint, config)
		r.mu.Lock()
		r.endpoints = &endpoints
		r.mu.Unlock()
		return &endpoints, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Endpoints), nil
}

// Caller binds resolved endpoints to an http client,
// so they can be passed to the Call functions of this package.
type Caller struct {
	Endpoints
	Client *http.Client
}

func (c *Caller) TokenEndpoint() string {
	return c.TokenURL
}

func (c *Caller) GetRevokeEndpoint() string {
	return c.RevokeURL
}

func (c *Caller) UserinfoEndpoint() string {
	return c.UserinfoURL
}

func (c *Caller) ChallengeEndpoint() string {
	return c.ChallengeURL
}

func (c *Caller) HttpClient() *http.Client {
	return c.Client
}
