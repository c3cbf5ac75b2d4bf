// Package app2app implements the same device handoff in which one
// application obtains a session from another application that holds one.
package app2app

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

// ErrNotAuthenticateRequest is returned by ParseAuthenticateRequest for
// URLs that are not addressed to the expected authorization endpoint.
var ErrNotAuthenticateRequest = errors.New("app2app: not an authentication request")

// AuthenticateRequest is sent by the initiating application to the
// authorization endpoint of the responding one.
type AuthenticateRequest struct {
	AuthorizationEndpoint string
	RedirectURI           string
	ClientID              string
	CodeChallenge         string
	State                 string
}

// URL encodes the request as query of the authorization endpoint.
func (r *AuthenticateRequest) URL() (*url.URL, error) {
	u, err := url.Parse(r.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("app2app: invalid authorization endpoint: %w", err)
	}
	q := u.Query()
	q.Set(oidc.ParamClientID, r.ClientID)
	q.Set(oidc.ParamRedirectURI, r.RedirectURI)
	q.Set(oidc.ParamCodeChallenge, r.CodeChallenge)
	q.Set(oidc.ParamCodeChallengeMethod, string(oidc.CodeChallengeMethodS256))
	if r.State != "" {
		q.Set(oidc.ParamState, r.State)
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// ParseAuthenticateRequest decodes u when it points at expectedEndpoint.
// The endpoint is compared after normalization, so extra query
// parameters and fragments on u are ignored.
func ParseAuthenticateRequest(u *url.URL, expectedEndpoint string) (*AuthenticateRequest, error) {
	expected, err := url.Parse(expectedEndpoint)
	if err != nil {
		return nil, fmt.Errorf("app2app: invalid authorization endpoint: %w", err)
	}
	if Normalize(u) != Normalize(expected) {
		return nil, ErrNotAuthenticateRequest
	}
	q := u.Query()
	req := &AuthenticateRequest{
		AuthorizationEndpoint: Normalize(u),
		RedirectURI:           q.Get(oidc.ParamRedirectURI),
		ClientID:              q.Get(oidc.ParamClientID),
		CodeChallenge:         q.Get(oidc.ParamCodeChallenge),
		State:                 q.Get(oidc.ParamState),
	}
	switch {
	case req.RedirectURI == "":
		return nil, fmt.Errorf("%w: missing %s", ErrNotAuthenticateRequest, oidc.ParamRedirectURI)
	case req.ClientID == "":
		return nil, fmt.Errorf("%w: missing %s", ErrNotAuthenticateRequest, oidc.ParamClientID)
	case req.CodeChallenge == "":
		return nil, fmt.Errorf("%w: missing %s", ErrNotAuthenticateRequest, oidc.ParamCodeChallenge)
	}
	return req, nil
}

// Normalize strips the query and the fragment of u.
func Normalize(u *url.URL) string {
	n := *u
	n.RawQuery = ""
	n.ForceQuery = false
	n.Fragment = ""
	n.RawFragment = ""
	return n.String()
}
