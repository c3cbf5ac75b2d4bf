package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/otel"
	httphelper "github.com/authgear/authgear-sdk-ios-sub000/pkg/http"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

var (
	Encoder = httphelper.Encoder(oidc.NewEncoder())
	Tracer  = otel.NewTracer("github.com/authgear/authgear-sdk-ios-sub000/pkg/client")
)

// Discover calls the discovery endpoint of the provided endpoint and returns its configuration
// It accepts an optional argument "wellknownUrl" which can be used to overide the dicovery endpoint url
func Discover(ctx context.Context, endpoint string, httpClient *http.Client, wellKnownUrl ...string) (_ *oidc.DiscoveryConfiguration, err error) {
	wellKnown := strings.TrimSuffix(endpoint, "/") + oidc.DiscoveryEndpoint
	if len(wellKnownUrl) == 1 && wellKnownUrl[0] != "" {
		wellKnown = wellKnownUrl[0]
	}
	ctx, span := Tracer.Start(ctx, "Discover", wellKnown)
	defer func() { otel.End(span, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, err
	}
	discoveryConfig := new(oidc.DiscoveryConfiguration)
	err = httphelper.HttpRequest(httpClient, req, &discoveryConfig)
	if err != nil {
		return nil, errors.Join(oidc.ErrDiscoveryFailed, err)
	}
	if discoveryConfig.TokenEndpoint == "" || discoveryConfig.AuthorizationEndpoint == "" {
		return nil, oidc.ErrDiscoveryFailed
	}
	return discoveryConfig, nil
}

type TokenEndpointCaller interface {
	TokenEndpoint() string
	HttpClient() *http.Client
}

// CallTokenEndpoint posts the form encoded request to the token endpoint.
func CallTokenEndpoint(ctx context.Context, request oidc.TokenRequest, caller TokenEndpointCaller) (*oidc.AccessTokenResponse, error) {
	return callTokenEndpoint(ctx, request, caller, nil)
}

// CallAuthorizedTokenEndpoint is CallTokenEndpoint for grants that act
// on behalf of the signed in user, such as the biometric setup.
func CallAuthorizedTokenEndpoint(ctx context.Context, request oidc.TokenRequest, accessToken string, caller TokenEndpointCaller) (*oidc.AccessTokenResponse, error) {
	return callTokenEndpoint(ctx, request, caller, httphelper.AuthorizeBearer(accessToken))
}

func callTokenEndpoint(ctx context.Context, request oidc.TokenRequest, caller TokenEndpointCaller, authFn any) (_ *oidc.AccessTokenResponse, err error) {
	ctx, span := Tracer.Start(ctx, "CallTokenEndpoint", caller.TokenEndpoint())
	defer func() { otel.End(span, err) }()

	req, err := httphelper.FormRequest(ctx, caller.TokenEndpoint(), request, Encoder, authFn)
	if err != nil {
		return nil, err
	}
	tokenRes := new(oidc.AccessTokenResponse)
	if err := httphelper.HttpRequest(caller.HttpClient(), req, tokenRes); err != nil {
		return nil, err
	}
	return tokenRes, nil
}

type RevokeCaller interface {
	GetRevokeEndpoint() string
	HttpClient() *http.Client
}

// CallRevokeEndpoint revokes the given refresh token.
func CallRevokeEndpoint(ctx context.Context, request *oidc.RevokeRequest, caller RevokeCaller) (err error) {
	ctx, span := Tracer.Start(ctx, "CallRevokeEndpoint", caller.GetRevokeEndpoint())
	defer func() { otel.End(span, err) }()

	req, err := httphelper.FormRequest(ctx, caller.GetRevokeEndpoint(), request, Encoder, nil)
	if err != nil {
		return err
	}
	return httphelper.HttpRequest(caller.HttpClient(), req, nil)
}

type UserinfoCaller interface {
	UserinfoEndpoint() string
	HttpClient() *http.Client
}

// CallUserinfoEndpoint fetches the claims of the owner of accessToken.
func CallUserinfoEndpoint(ctx context.Context, accessToken string, caller UserinfoCaller) (_ *oidc.UserInfo, err error) {
	ctx, span := Tracer.Start(ctx, "CallUserinfoEndpoint", caller.UserinfoEndpoint())
	defer func() { otel.End(span, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, caller.UserinfoEndpoint(), nil)
	if err != nil {
		return nil, err
	}
	httphelper.AuthorizeBearer(accessToken)(req)
	userinfo := new(oidc.UserInfo)
	if err := httphelper.HttpRequest(caller.HttpClient(), req, userinfo); err != nil {
		return nil, err
	}
	return userinfo, nil
}

type ChallengeCaller interface {
	ChallengeEndpoint() string
	HttpClient() *http.Client
}

// CallChallengeEndpoint requests a one-time challenge for the given purpose.
func CallChallengeEndpoint(ctx context.Context, purpose oidc.ChallengePurpose, caller ChallengeCaller) (_ *oidc.Challenge, err error) {
	ctx, span := Tracer.Start(ctx, "CallChallengeEndpoint", caller.ChallengeEndpoint())
	defer func() { otel.End(span, err) }()

	req, err := httphelper.JSONRequest(ctx, caller.ChallengeEndpoint(), &oidc.ChallengeRequest{Purpose: purpose}, nil)
	if err != nil {
		return nil, err
	}
	resp := new(oidc.ChallengeResponse)
	if err := httphelper.HttpRequest(caller.HttpClient(), req, resp); err != nil {
		return nil, err
	}
	if resp.Result == nil || resp.Result.Token == "" {
		return nil, oidc.ErrEmptyChallenge
	}
	return resp.Result, nil
}
