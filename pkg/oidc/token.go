package oidc

const BearerToken = "Bearer"

// AccessTokenResponse is the body of a successful token endpoint response.
// Every field is optional: the biometric setup grant answers with an empty body
// and the app2app grant answers with a code only.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    uint64 `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Code         string `json:"code,omitempty"`
}
