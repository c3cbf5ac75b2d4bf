package oidc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInfo_JSON(t *testing.T) {
	body := `{
		"sub": "user",
		"https://authgear.com/claims/user/is_anonymous": false,
		"https://authgear.com/claims/user/is_verified": true,
		"https://authgear.com/claims/user/can_reauthenticate": true,
		"email": "user@example.com",
		"custom_attributes": {"plan": "pro"}
	}`
	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "user", info.GetSubject())
	assert.True(t, info.IsVerified)
	assert.True(t, info.CanReauthenticate)
	assert.Equal(t, "user@example.com", info.Email)
	assert.Equal(t, map[string]any{"plan": "pro"}, info.Claims["custom_attributes"])
	assert.Equal(t, "user", info.Claims["sub"])

	data, err := json.Marshal(&info)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(data))
}

func TestUserInfo_MarshalJSON_fieldsWin(t *testing.T) {
	info := &UserInfo{
		Subject: "user",
		Claims:  map[string]any{"sub": "stale", "extra": 1},
	}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "user", got["sub"])
	assert.Equal(t, float64(1), got["extra"])
}
