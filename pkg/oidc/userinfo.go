package oidc

const (
	ClaimIsAnonymous       = "https://authgear.com/claims/user/is_anonymous"
	ClaimIsVerified        = "https://authgear.com/claims/user/is_verified"
	ClaimCanReauthenticate = "https://authgear.com/claims/user/can_reauthenticate"
)

// UserInfo is the response of the userinfo endpoint.
// Claims holds every claim, including the ones mapped to fields.
type UserInfo struct {
	Subject             string `json:"sub"`
	IsAnonymous         bool   `json:"https://authgear.com/claims/user/is_anonymous"`
	IsVerified          bool   `json:"https://authgear.com/claims/user/is_verified"`
	CanReauthenticate   bool   `json:"https://authgear.com/claims/user/can_reauthenticate"`
	Email               string `json:"email,omitempty"`
	EmailVerified       bool   `json:"email_verified,omitempty"`
	PhoneNumber         string `json:"phone_number,omitempty"`
	PhoneNumberVerified bool   `json:"phone_number_verified,omitempty"`
	PreferredUsername   string `json:"preferred_username,omitempty"`
	Name                string `json:"name,omitempty"`
	Locale              string `json:"locale,omitempty"`

	Claims map[string]any `json:"-"`
}

func (u *UserInfo) GetSubject() string {
	return u.Subject
}

type uiAlias UserInfo

func (u *UserInfo) UnmarshalJSON(data []byte) error {
	return unmarshalJSONMulti(data, (*uiAlias)(u), &u.Claims)
}

func (u *UserInfo) MarshalJSON() ([]byte, error) {
	return mergeAndMarshalClaims((*uiAlias)(u), u.Claims)
}
