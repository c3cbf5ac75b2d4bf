package oidc

const (
	// GrantTypeCode defines the grant_type `authorization_code` used for the Token Request in the Authorization Code Flow
	GrantTypeCode GrantType = "authorization_code"

	// GrantTypeRefreshToken defines the grant_type `refresh_token` used for the Token Request in the Refresh Token Flow
	GrantTypeRefreshToken GrantType = "refresh_token"

	// GrantTypeAnonymous exchanges a signed anonymous request JWT for tokens of an anonymous user.
	GrantTypeAnonymous GrantType = "urn:authgear:params:oauth:grant-type:anonymous-request"

	// GrantTypeBiometric sets up or uses a biometric bound device key.
	GrantTypeBiometric GrantType = "urn:authgear:params:oauth:grant-type:biometric-request"

	// GrantTypeApp2App lets an app holding a session issue an authorization code
	// for another app on the same device.
	GrantTypeApp2App GrantType = "urn:authgear:params:oauth:grant-type:app2app-request"
)

type GrantType string

type TokenRequest interface {
	GrantType() GrantType
}

// AccessTokenRequest is the `authorization_code` token request.
// DeviceKeyJWT binds the session to this device's app2app key when set.
type AccessTokenRequest struct {
	GrantTypeValue GrantType `schema:"grant_type"`
	ClientID       string    `schema:"client_id"`
	Code           string    `schema:"code"`
	RedirectURI    string    `schema:"redirect_uri"`
	CodeVerifier   string    `schema:"code_verifier,omitempty"`
	DeviceKeyJWT   string    `schema:"x_app2app_device_key_jwt,omitempty"`
}

func (a *AccessTokenRequest) GrantType() GrantType {
	return GrantTypeCode
}

type RefreshTokenRequest struct {
	GrantTypeValue GrantType `schema:"grant_type"`
	ClientID       string    `schema:"client_id"`
	RefreshToken   string    `schema:"refresh_token"`
}

func (r *RefreshTokenRequest) GrantType() GrantType {
	return GrantTypeRefreshToken
}

// JWTGrantRequest carries a signed assertion, used by
// the anonymous and biometric grants.
type JWTGrantRequest struct {
	GrantTypeValue GrantType `schema:"grant_type"`
	ClientID       string    `schema:"client_id"`
	JWT            string    `schema:"jwt"`
}

func (r *JWTGrantRequest) GrantType() GrantType {
	return r.GrantTypeValue
}

// App2AppTokenRequest is sent by the app that holds the session on behalf of
// the requesting app identified by ClientID. The response carries a `code`
// which the requesting app exchanges with its own PKCE verifier.
type App2AppTokenRequest struct {
	GrantTypeValue      GrantType           `schema:"grant_type"`
	ClientID            string              `schema:"client_id"`
	JWT                 string              `schema:"jwt"`
	RefreshToken        string              `schema:"refresh_token"`
	RedirectURI         string              `schema:"redirect_uri"`
	CodeChallenge       string              `schema:"code_challenge"`
	CodeChallengeMethod CodeChallengeMethod `schema:"code_challenge_method"`
}

func (r *App2AppTokenRequest) GrantType() GrantType {
	return GrantTypeApp2App
}

// RevokeRequest revokes a refresh token, see RFC 7009.
type RevokeRequest struct {
	Token string `schema:"token"`
}
