package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrDiscoveryFailed = errors.New("OpenID Provider Configuration Discovery has failed")
	ErrEmptyChallenge  = errors.New("challenge endpoint returned no token")
)

type errorType string

const (
	InvalidRequest       errorType = "invalid_request"
	InvalidClient        errorType = "invalid_client"
	InvalidGrant         errorType = "invalid_grant"
	UnsupportedGrantType errorType = "unsupported_grant_type"
	ServerErrorType      errorType = "server_error"
	AccessDenied         errorType = "access_denied"
)

var (
	ErrInvalidRequest = func() *Error {
		return &Error{
			ErrorType: InvalidRequest,
		}
	}
	ErrInvalidGrant = func() *Error {
		return &Error{
			ErrorType: InvalidGrant,
		}
	}
	ErrAccessDenied = func() *Error {
		return &Error{
			ErrorType: AccessDenied,
		}
	}
	ErrServerError = func() *Error {
		return &Error{
			ErrorType: ServerErrorType,
		}
	}
)

// Error is the OAuth 2.0 shaped error body
// as returned by the token endpoint or appended to a redirect URI.
type Error struct {
	ErrorType   errorType `json:"error" schema:"error"`
	Description string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
	URI         string    `json:"error_uri,omitempty" schema:"error_uri,omitempty"`
	State       string    `json:"state,omitempty" schema:"state,omitempty"`
}

// NewError returns an Error with an arbitrary error code,
// as received from a callback query.
func NewError(code, description string) *Error {
	return &Error{
		ErrorType:   errorType(code),
		Description: description,
	}
}

func (e *Error) Error() string {
	message := "ErrorType=" + string(e.ErrorType)
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	return message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType &&
		(e.Description == t.Description || t.Description == "") &&
		(e.State == t.State || t.State == "")
}

// Code returns the raw `error` value.
func (e *Error) Code() string {
	return string(e.ErrorType)
}

func (e *Error) WithDescription(desc string, args ...interface{}) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

// IsInvalidGrant reports whether err carries an OAuth `invalid_grant` code.
func IsInvalidGrant(err error) bool {
	var oauthErr *Error
	return errors.As(err, &oauthErr) && oauthErr.ErrorType == InvalidGrant
}

// ServerError is the structured error body returned by the
// non OAuth endpoints of the server, such as the challenge endpoint.
//
//	{"error": {"name": "Unauthorized", "reason": "InvalidCredentials", "message": "...", "info": {...}}}
type ServerError struct {
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Reason  string         `json:"reason"`
	Info    map[string]any `json:"info,omitempty"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Reason)
}

// UnexpectedStatusError is used when the response body of a failed
// request neither decodes into an Error nor into a ServerError.
type UnexpectedStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("http status not ok: %d %s", e.StatusCode, e.Body)
}
