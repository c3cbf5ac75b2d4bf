package oidc

type ChallengePurpose string

const (
	ChallengePurposeAnonymous ChallengePurpose = "anonymous_request"
	ChallengePurposeBiometric ChallengePurpose = "biometric_request"
	ChallengePurposeApp2App   ChallengePurpose = "app2app_request"
)

type ChallengeRequest struct {
	Purpose ChallengePurpose `json:"purpose"`
}

// Challenge is a one-time value issued by the server,
// to be embedded into exactly one signed assertion.
type Challenge struct {
	Token    string      `json:"token"`
	ExpireAt RFC3339Time `json:"expire_at"`
}

// ChallengeResponse is the envelope of the challenge endpoint.
type ChallengeResponse struct {
	Result *Challenge `json:"result"`
}
