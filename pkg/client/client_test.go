package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/authgear/authgear-sdk-ios-sub000/internal/testutil"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestDiscover(t *testing.T) {
	idp := testutil.NewIdP()
	defer idp.Close()

	type args struct {
		endpoint     string
		wellKnownUrl []string
	}
	tests := []struct {
		name    string
		args    args
		wantErr error
	}{
		{
			name: "discovered",
			args: args{endpoint: idp.URL()},
		},
		{
			name: "trailing slash",
			args: args{endpoint: idp.URL() + "/"},
		},
		{
			name: "explicit well known url",
			args: args{endpoint: "https://unused.example.com", wellKnownUrl: []string{idp.URL() + oidc.DiscoveryEndpoint}},
		},
		{
			name:    "discovery failed",
			args:    args{endpoint: idp.URL() + "/missing"},
			wantErr: oidc.ErrDiscoveryFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(context.Background(), tt.args.endpoint, http.DefaultClient, tt.args.wellKnownUrl...)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr != nil {
				return
			}
			assert.Equal(t, idp.URL(), got.Issuer)
			assert.Equal(t, idp.URL()+testutil.PathToken, got.TokenEndpoint)
		})
	}
}

func TestDiscover_incomplete(t *testing.T) {
	server := serve(t, respond(http.StatusOK, `{"issuer":"x","authorization_endpoint":"https://x/authorize"}`))
	_, err := Discover(context.Background(), server.URL, server.Client())
	assert.ErrorIs(t, err, oidc.ErrDiscoveryFailed)
}

func TestEndpointResolver_Resolve(t *testing.T) {
	var calls atomic.Int32
	var failFirst atomic.Bool
	failFirst.Store(true)
	var server *httptest.Server
	server = serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		time.Sleep(10 * time.Millisecond)
		writeDiscovery(w, server.URL)
	})

	resolver := NewEndpointResolver(server.URL+"/", server.Client())
	_, err := resolver.Resolve(context.Background())
	require.ErrorIs(t, err, oidc.ErrDiscoveryFailed)

	var g errgroup.Group
	var mu sync.Mutex
	var results []*Endpoints
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			endpoints, err := resolver.Resolve(context.Background())
			mu.Lock()
			results = append(results, endpoints)
			mu.Unlock()
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(2), calls.Load(), "a failure is retried, concurrent calls share one request")
	for _, endpoints := range results {
		assert.Equal(t, server.URL+"/oauth2/token", endpoints.TokenURL)
		assert.Equal(t, server.URL+oidc.ChallengeEndpoint, endpoints.ChallengeURL)
	}

	_, err = resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func writeDiscovery(w http.ResponseWriter, issuer string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&oidc.DiscoveryConfiguration{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + "/oauth2/authorize",
		TokenEndpoint:         issuer + "/oauth2/token",
		UserinfoEndpoint:      issuer + "/oauth2/userinfo",
		RevocationEndpoint:    issuer + "/oauth2/revoke",
	})
}

func caller(server *httptest.Server) *Caller {
	return &Caller{
		Endpoints: Endpoints{
			TokenURL:     server.URL + "/token",
			RevokeURL:    server.URL + "/revoke",
			UserinfoURL:  server.URL + "/userinfo",
			ChallengeURL: server.URL + "/challenge",
		},
		Client: server.Client(),
	}
}

func TestCallTokenEndpoint(t *testing.T) {
	var form map[string][]string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		respond(http.StatusOK, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":100,"id_token":"idt"}`)(w, r)
	})

	resp, err := CallTokenEndpoint(context.Background(), &oidc.RefreshTokenRequest{
		GrantTypeValue: oidc.GrantTypeRefreshToken,
		ClientID:       "client",
		RefreshToken:   "old",
	}, caller(server))
	require.NoError(t, err)
	assert.Equal(t, &oidc.AccessTokenResponse{
		AccessToken:  "at",
		TokenType:    "Bearer",
		RefreshToken: "rt",
		ExpiresIn:    100,
		IDToken:      "idt",
	}, resp)
	assert.Equal(t, []string{"refresh_token"}, form["grant_type"])
	assert.Equal(t, []string{"old"}, form["refresh_token"])
	assert.Equal(t, []string{"client"}, form["client_id"])
}

func TestCallTokenEndpoint_errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "oauth error",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_grant","error_description":"expired"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, oidc.IsInvalidGrant(err))
				assert.ErrorIs(t, err, oidc.ErrInvalidGrant().WithDescription("expired"))
			},
		},
		{
			name:   "server error",
			status: http.StatusUnauthorized,
			body:   `{"error":{"name":"Unauthorized","reason":"InvalidCredentials","message":"bad"}}`,
			check: func(t *testing.T, err error) {
				var serverErr *oidc.ServerError
				require.ErrorAs(t, err, &serverErr)
				assert.Equal(t, "InvalidCredentials", serverErr.Reason)
			},
		},
		{
			name:   "unexpected status",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			check: func(t *testing.T, err error) {
				var statusErr *oidc.UnexpectedStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
				assert.Equal(t, "<html>bad gateway</html>", string(statusErr.Body))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, respond(tt.status, tt.body))
			_, err := CallTokenEndpoint(context.Background(), &oidc.RefreshTokenRequest{
				GrantTypeValue: oidc.GrantTypeRefreshToken,
				RefreshToken:   "rt",
			}, caller(server))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCallAuthorizedTokenEndpoint(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	resp, err := CallAuthorizedTokenEndpoint(context.Background(), &oidc.JWTGrantRequest{
		GrantTypeValue: oidc.GrantTypeBiometric,
		JWT:            "jwt",
	}, "at", caller(server))
	require.NoError(t, err)
	assert.Empty(t, resp.AccessToken)
}

func TestCallRevokeEndpoint(t *testing.T) {
	var revoked string
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		revoked = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, CallRevokeEndpoint(context.Background(), &oidc.RevokeRequest{Token: "rt"}, caller(server)))
	assert.Equal(t, "rt", revoked)
}

func TestCallUserinfoEndpoint(t *testing.T) {
	server := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			respond(http.StatusUnauthorized, `{"error":"invalid_token"}`)(w, r)
			return
		}
		respond(http.StatusOK, `{"sub":"user","https://authgear.com/claims/user/is_anonymous":true}`)(w, r)
	})
	userInfo, err := CallUserinfoEndpoint(context.Background(), "at", caller(server))
	require.NoError(t, err)
	assert.Equal(t, "user", userInfo.Subject)
	assert.True(t, userInfo.IsAnonymous)

	_, err = CallUserinfoEndpoint(context.Background(), "other", caller(server))
	var oauthErr *oidc.Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "invalid_token", oauthErr.Code())
}

func TestCallChallengeEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr error
	}{
		{"challenge", http.StatusOK, `{"result":{"token":"c1","expire_at":"2024-01-01T00:00:00Z"}}`, "c1", nil},
		{"empty", http.StatusOK, `{"result":{}}`, "", oidc.ErrEmptyChallenge},
		{"no result", http.StatusOK, `{}`, "", oidc.ErrEmptyChallenge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(t, func(w http.ResponseWriter, r *http.Request) {
				var req oidc.ChallengeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, oidc.ChallengePurposeBiometric, req.Purpose)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				respond(tt.status, tt.body)(w, r)
			})
			challenge, err := CallChallengeEndpoint(context.Background(), oidc.ChallengePurposeBiometric, caller(server))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, challenge.Token)
		})
	}
}
