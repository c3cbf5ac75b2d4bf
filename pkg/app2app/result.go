package app2app

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

const unknownErrorType = "unknown_error"

// ApproveURL appends the authorization code to redirectURI.
func ApproveURL(redirectURI, code string) (*url.URL, error) {
	return appendQuery(redirectURI, url.Values{oidc.ParamCode: {code}})
}

// RejectURL appends err to redirectURI as OAuth error parameters.
// Errors without an OAuth code are reported as unknown_error.
func RejectURL(redirectURI string, err error) (*url.URL, error) {
	code, description := unknownErrorType, ""
	var (
		oauthErr  *oidc.Error
		serverErr *oidc.ServerError
	)
	switch {
	case errors.As(err, &oauthErr):
		code, description = oauthErr.Code(), oauthErr.Description
	case errors.As(err, &serverErr):
		code, description = string(oidc.ServerErrorType), serverErr.Message
	case err != nil:
		description = err.Error()
	}
	v := url.Values{oidc.ParamError: {code}}
	if description != "" {
		v.Set(oidc.ParamErrorDescription, description)
	}
	return appendQuery(redirectURI, v)
}

// ParseResult reads the result delivered back to the initiator.
// An error result is returned as *oidc.Error.
func ParseResult(u *url.URL) (string, error) {
	q := u.Query()
	if code := q.Get(oidc.ParamError); code != "" {
		return "", oidc.NewError(code, q.Get(oidc.ParamErrorDescription))
	}
	code := q.Get(oidc.ParamCode)
	if code == "" {
		return "", oidc.ErrInvalidRequest().WithDescription("app2app result without %s", oidc.ParamCode)
	}
	return code, nil
}

func appendQuery(redirectURI string, v url.Values) (*url.URL, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("app2app: invalid redirect uri: %w", err)
	}
	q := u.Query()
	for k, values := range v {
		q[k] = values
	}
	u.RawQuery = q.Encode()
	return u, nil
}
