package oidc

const (
	DiscoveryEndpoint = "/.well-known/openid-configuration"
	ChallengeEndpoint = "/oauth2/challenge"
)

// DiscoveryConfiguration is the part of the provider metadata this client
// reads. Only the authorization and token endpoints are mandatory.
type DiscoveryConfiguration struct {
	Issuer                        string                `json:"issuer,omitempty"`
	AuthorizationEndpoint         string                `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                 string                `json:"token_endpoint,omitempty"`
	UserinfoEndpoint              string                `json:"userinfo_endpoint,omitempty"`
	RevocationEndpoint            string                `json:"revocation_endpoint,omitempty"`
	CodeChallengeMethodsSupported []CodeChallengeMethod `json:"code_challenge_methods_supported,omitempty"`
}
