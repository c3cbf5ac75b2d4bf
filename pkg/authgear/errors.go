package authgear

import (
	"errors"
)

var (
	// ErrCanceled is returned when the user dismisses the authorization session.
	ErrCanceled = errors.New("authgear: canceled")

	// ErrAnonymousUserNotFound is returned by PromoteAnonymousUser when
	// no anonymous key binding exists.
	ErrAnonymousUserNotFound = errors.New("authgear: anonymous user not found")

	// ErrUnauthenticatedUser is returned by operations that need a session.
	ErrUnauthenticatedUser = errors.New("authgear: unauthenticated user")

	ErrBiometricNotEnabled = errors.New("authgear: biometric not enabled")
	ErrApp2AppNotEnabled   = errors.New("authgear: app2app not enabled")
	ErrStateMismatch       = errors.New("authgear: state mismatch")
)
