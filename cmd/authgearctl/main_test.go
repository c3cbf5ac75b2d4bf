package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/testutil"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/authgear"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

func setup(t *testing.T) *testutil.IdP {
	t.Helper()
	idp := testutil.NewIdP()
	t.Cleanup(idp.Close)
	t.Setenv("AUTHGEAR_CLIENT_ID", "client")
	t.Setenv("AUTHGEAR_ENDPOINT", idp.URL())
	t.Setenv("AUTHGEAR_STORE_PATH", filepath.Join(t.TempDir(), "credentials.db"))
	t.Setenv("AUTHGEAR_STORE_HASH_KEY", strings.Repeat("ab", 32))
	t.Setenv("AUTHGEAR_STORE_BLOCK_KEY", strings.Repeat("cd", 16))
	t.Setenv("AUTHGEAR_LOG_LEVEL", "error")
	return idp
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRun_anonymousSession(t *testing.T) {
	idp := setup(t)

	out, err := runCLI(t, "anonymous")
	require.NoError(t, err)
	var signedIn oidc.UserInfo
	require.NoError(t, json.Unmarshal([]byte(out), &signedIn))
	assert.True(t, signedIn.IsAnonymous)

	// The session survives the process through the credential store.
	out, err = runCLI(t, "whoami")
	require.NoError(t, err)
	var whoami oidc.UserInfo
	require.NoError(t, json.Unmarshal([]byte(out), &whoami))
	assert.Equal(t, signedIn.Subject, whoami.Subject)

	out, err = runCLI(t, "token")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = runCLI(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, 1, idp.Calls(testutil.PathRevoke))

	_, err = runCLI(t, "whoami")
	assert.ErrorIs(t, err, authgear.ErrUnauthenticatedUser)
	_, err = runCLI(t, "token")
	assert.ErrorIs(t, err, authgear.ErrUnauthenticatedUser)
}

func TestRun_anonymousKeyPersists(t *testing.T) {
	setup(t)

	subjects := make([]string, 2)
	for i := range subjects {
		out, err := runCLI(t, "anonymous")
		require.NoError(t, err)
		var userInfo oidc.UserInfo
		require.NoError(t, json.Unmarshal([]byte(out), &userInfo))
		subjects[i] = userInfo.Subject
	}
	// The second run signs with the device key created by the first one.
	assert.Equal(t, subjects[0], subjects[1])
	assert.True(t, strings.HasPrefix(subjects[0], "anonymous-"))
}

func TestRun_commands(t *testing.T) {
	setup(t)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = runCLI(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "usage: authgearctl")

	_, err = runCLI(t)
	assert.Error(t, err)

	out, err = runCLI(t, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")
	assert.Contains(t, out, "usage: authgearctl")

	_, err = runCLI(t, "logout", "-bogus")
	assert.Error(t, err)
}

func TestRun_invalidConfig(t *testing.T) {
	setup(t)
	t.Setenv("AUTHGEAR_CLIENT_ID", "")
	_, err := runCLI(t, "whoami")
	assert.ErrorContains(t, err, "AUTHGEAR_CLIENT_ID")
}
