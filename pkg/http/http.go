package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

var DefaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

type Encoder interface {
	Encode(src any, dst map[string][]string) error
}

type FormAuthorization func(url.Values)
type RequestAuthorization func(*http.Request)

// AuthorizeBearer sets the access token as Bearer authorization header.
func AuthorizeBearer(accessToken string) RequestAuthorization {
	return func(req *http.Request) {
		req.Header.Set("Authorization", oidc.BearerToken+" "+accessToken)
	}
}

func FormRequest(ctx context.Context, endpoint string, request any, encoder Encoder, authFn any) (*http.Request, error) {
	form := url.Values{}
	if err := encoder.Encode(request, form); err != nil {
		return nil, err
	}
	if fn, ok := authFn.(FormAuthorization); ok {
		fn(form)
	}
	body := strings.NewReader(form.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if fn, ok := authFn.(RequestAuthorization); ok {
		fn(req)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func JSONRequest(ctx context.Context, endpoint string, request any, authFn any) (*http.Request, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if fn, ok := authFn.(RequestAuthorization); ok {
		fn(req)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// HttpRequest executes req and decodes a 2xx body into response.
// An empty 2xx body leaves response untouched; a nil response discards the body.
// Non 2xx responses are decoded by DecodeError.
func HttpRequest(client *http.Client, req *http.Request, response any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodeError(resp.StatusCode, body)
	}

	if response == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	err = json.Unmarshal(body, response)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response: %w %s", err, body)
	}
	return nil
}

// DecodeError tries the OAuth error shape first, then the server error shape
// and finally returns an *oidc.UnexpectedStatusError carrying the raw body.
func DecodeError(statusCode int, body []byte) error {
	var oauthErr oidc.Error
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.ErrorType != "" {
		return &oauthErr
	}
	var serverErr struct {
		Error *oidc.ServerError `json:"error"`
	}
	if err := json.Unmarshal(body, &serverErr); err == nil && serverErr.Error != nil && serverErr.Error.Name != "" {
		return serverErr.Error
	}
	return &oidc.UnexpectedStatusError{
		StatusCode: statusCode,
		Body:       body,
	}
}
