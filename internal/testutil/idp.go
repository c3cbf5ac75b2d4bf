package testutil

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/schema"

	"github.com/authgear/authgear-sdk-ios-sub000/pkg/assertion"
	"github.com/authgear/authgear-sdk-ios-sub000/pkg/oidc"
)

const (
	PathAuthorize = "/oauth2/authorize"
	PathToken     = "/oauth2/token"
	PathUserinfo  = "/oauth2/userinfo"
	PathRevoke    = "/oauth2/revoke"

	// DefaultSubject is the user signed in by the authorization endpoint.
	DefaultSubject = "user"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

type codeGrant struct {
	subject       string
	clientID      string
	redirectURI   string
	codeChallenge string
}

type user struct {
	subject   string
	anonymous bool
}

type failure struct {
	status int
	body   string
}

// IdP is an in memory authorization server speaking the wire protocol of the
// client. It verifies PKCE and device key assertions like the real server.
type IdP struct {
	Server *httptest.Server
	Keys   *KeySet

	mu            sync.Mutex
	expiresIn     uint64
	tokenDelay    time.Duration
	seq           int
	codes         map[string]codeGrant
	refreshTokens map[string]user
	accessTokens  map[string]user
	challenges    map[string]oidc.ChallengePurpose
	deviceKeys    map[string]*ecdsa.PublicKey
	anonymous     map[string]user
	biometric     map[string]user
	failures      map[oidc.GrantType][]failure
	calls         map[string]int
	tokenForms    []url.Values
	assertions    []*jwt.Token

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func NewIdP() *IdP {
	p := &IdP{
		Keys:          NewKeySet(),
		expiresIn:     3600,
		codes:         make(map[string]codeGrant),
		refreshTokens: make(map[string]user),
		accessTokens:  make(map[string]user),
		challenges:    make(map[string]oidc.ChallengePurpose),
		deviceKeys:    make(map[string]*ecdsa.PublicKey),
		anonymous:     make(map[string]user),
		biometric:     make(map[string]user),
		failures:      make(map[oidc.GrantType][]failure),
		calls:         make(map[string]int),
	}
	r := chi.NewRouter()
	r.Use(p.count)
	r.Get(oidc.DiscoveryEndpoint, p.discovery)
	r.Get(PathAuthorize, p.authorize)
	r.Post(PathToken, p.token)
	r.Get(PathUserinfo, p.userinfo)
	r.Post(PathRevoke, p.revoke)
	r.Post(oidc.ChallengeEndpoint, p.challenge)
	p.Server = httptest.NewServer(r)
	return p
}

func (p *IdP) Close() {
	p.Server.Close()
}

func (p *IdP) URL() string {
	return p.Server.URL
}

// SetExpiresIn sets the lifetime of issued access tokens, in seconds.
func (p *IdP) SetExpiresIn(seconds uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetTokenDelay delays every token endpoint answer by d.
func (p *IdP) SetTokenDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenDelay = d
}

// Calls returns how often path was requested.
func (p *IdP) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

// TotalCalls returns the number of requests to any endpoint.
func (p *IdP) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// TokenForms returns the forms posted to the token endpoint, in order.
func (p *IdP) TokenForms() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenForms...)
}

// Assertions returns the verified device key assertions, in order.
func (p *IdP) Assertions() []*jwt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*jwt.Token(nil), p.assertions...)
}

// MaxInFlightTokenRequests is the highest number of concurrent token requests seen.
func (p *IdP) MaxInFlightTokenRequests() int {
	return int(p.maxInFlight.Load())
}

// FailToken makes the next token request of grant answer with status and body.
func (p *IdP) FailToken(grant oidc.GrantType, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[grant] = append(p.failures[grant], failure{status, body})
}

// IssueRefreshToken returns a valid refresh token of subject.
func (p *IdP) IssueRefreshToken(subject string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	rt := fmt.Sprintf("rt-%d", p.seq)
	p.refreshTokens[rt] = user{subject: subject}
	return rt
}

// RevokeAll invalidates every refresh token.
func (p *IdP) RevokeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = make(map[string]user)
}

// HasRefreshToken reports whether rt is valid.
func (p *IdP) HasRefreshToken(rt string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.refreshTokens[rt]
	return ok
}

func (p *IdP) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls[r.URL.Path]++
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (p *IdP) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &oidc.DiscoveryConfiguration{
		Issuer:                        p.URL(),
		AuthorizationEndpoint:         p.URL() + PathAuthorize,
		TokenEndpoint:                 p.URL() + PathToken,
		UserinfoEndpoint:              p.URL() + PathUserinfo,
		RevocationEndpoint:            p.URL() + PathRevoke,
		CodeChallengeMethodsSupported: []oidc.CodeChallengeMethod{oidc.CodeChallengeMethodS256},
	})
}

// authorize signs in DefaultSubject without user interaction, or the
// anonymous user named by a promotion login_hint.
func (p *IdP) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get(oidc.ParamRedirectURI)
	if redirectURI == "" || q.Get(oidc.ParamClientID) == "" {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("missing client_id or redirect_uri"))
		return
	}
	if q.Get(oidc.ParamCodeChallengeMethod) != string(oidc.CodeChallengeMethodS256) || q.Get(oidc.ParamCodeChallenge) == "" {
		redirectError(w, r, redirectURI, oidc.ErrInvalidRequest().WithDescription("PKCE required"))
		return
	}
	subject := DefaultSubject
	if hint := q.Get(oidc.ParamLoginHint); strings.HasPrefix(hint, "https://authgear.com/login_hint?") {
		anon, err := p.promotionSubject(hint)
		if err != nil {
			redirectError(w, r, redirectURI, oidc.ErrInvalidRequest().WithDescription("%v", err))
			return
		}
		subject = anon
	}

	p.mu.Lock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = codeGrant{
		subject:       subject,
		clientID:      q.Get(oidc.ParamClientID),
		redirectURI:   redirectURI,
		codeChallenge: q.Get(oidc.ParamCodeChallenge),
	}
	p.mu.Unlock()

	v := url.Values{oidc.ParamCode: {code}}
	if state := q.Get(oidc.ParamState); state != "" {
		v.Set(oidc.ParamState, state)
	}
	http.Redirect(w, r, appendQuery(redirectURI, v), http.StatusFound)
}

func (p *IdP) promotionSubject(hint string) (string, error) {
	u, err := url.Parse(hint)
	if err != nil {
		return "", err
	}
	if u.Query().Get("type") != "anonymous" {
		return "", errors.New("unsupported login_hint type")
	}
	kid, claims, err := p.verifyAssertion(u.Query().Get("jwt"), assertion.TypeAnonymous, oidc.ChallengePurposeAnonymous)
	if err != nil {
		return "", err
	}
	if claims["action"] != string(assertion.ActionPromote) {
		return "", errors.New("unexpected action")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	anon, ok := p.anonymous[kid]
	if !ok {
		return "", errors.New("unknown anonymous user")
	}
	delete(p.anonymous, kid)
	return anon.subject, nil
}

func (p *IdP) token(w http.ResponseWriter, r *http.Request) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	p.mu.Lock()
	delay := p.tokenDelay
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("%v", err))
		return
	}
	grant := oidc.GrantType(r.PostForm.Get("grant_type"))

	p.mu.Lock()
	p.tokenForms = append(p.tokenForms, r.PostForm)
	var fail *failure
	if fs := p.failures[grant]; len(fs) > 0 {
		fail = &fs[0]
		p.failures[grant] = fs[1:]
	}
	p.mu.Unlock()
	if fail != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.status)
		_, _ = w.Write([]byte(fail.body))
		return
	}

	switch grant {
	case oidc.GrantTypeCode:
		p.codeExchange(w, r)
	case oidc.GrantTypeRefreshToken:
		p.refreshExchange(w, r)
	case oidc.GrantTypeAnonymous:
		p.anonymousExchange(w, r)
	case oidc.GrantTypeBiometric:
		p.biometricExchange(w, r)
	case oidc.GrantTypeApp2App:
		p.app2appExchange(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, &oidc.Error{ErrorType: oidc.UnsupportedGrantType})
	}
}

func (p *IdP) codeExchange(w http.ResponseWriter, r *http.Request) {
	req := new(oidc.AccessTokenRequest)
	if err := decoder.Decode(req, r.PostForm); err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("%v", err))
		return
	}
	p.mu.Lock()
	grant, ok := p.codes[req.Code]
	delete(p.codes, req.Code)
	p.mu.Unlock()
	switch {
	case !ok:
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("unknown code"))
		return
	case grant.redirectURI != req.RedirectURI:
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("redirect_uri mismatch"))
		return
	case oidc.NewSHACodeChallenge(req.CodeVerifier) != grant.codeChallenge:
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("code_verifier mismatch"))
		return
	}
	if req.DeviceKeyJWT != "" {
		if _, _, err := p.verifyAssertion(req.DeviceKeyJWT, assertion.TypeApp2App, oidc.ChallengePurposeApp2App); err != nil {
			writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("%v", err))
			return
		}
	}
	p.issue(w, user{subject: grant.subject})
}

func (p *IdP) refreshExchange(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	u, ok := p.refreshTokens[r.PostForm.Get("refresh_token")]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("unknown refresh token"))
		return
	}
	resp := p.newTokens(u, false)
	writeJSON(w, http.StatusOK, resp)
}

func (p *IdP) anonymousExchange(w http.ResponseWriter, r *http.Request) {
	kid, claims, err := p.verifyAssertion(r.PostForm.Get("jwt"), assertion.TypeAnonymous, oidc.ChallengePurposeAnonymous)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("%v", err))
		return
	}
	if claims["action"] != string(assertion.ActionAuth) {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("unexpected action"))
		return
	}
	p.mu.Lock()
	u, ok := p.anonymous[kid]
	if !ok {
		u = user{subject: "anonymous-" + kid, anonymous: true}
		p.anonymous[kid] = u
	}
	p.mu.Unlock()
	p.issue(w, u)
}

func (p *IdP) biometricExchange(w http.ResponseWriter, r *http.Request) {
	kid, claims, err := p.verifyAssertion(r.PostForm.Get("jwt"), assertion.TypeBiometric, oidc.ChallengePurposeBiometric)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("%v", err))
		return
	}
	switch claims["action"] {
	case string(assertion.ActionSetup):
		u, ok := p.bearer(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, &oidc.Error{ErrorType: oidc.InvalidClient, Description: "bearer token required"})
			return
		}
		p.mu.Lock()
		p.biometric[kid] = u
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case string(assertion.ActionAuthenticate):
		p.mu.Lock()
		u, ok := p.biometric[kid]
		p.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("biometric key not enrolled"))
			return
		}
		p.issue(w, u)
	default:
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("unexpected action"))
	}
}

func (p *IdP) app2appExchange(w http.ResponseWriter, r *http.Request) {
	req := new(oidc.App2AppTokenRequest)
	if err := decoder.Decode(req, r.PostForm); err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("%v", err))
		return
	}
	if req.CodeChallengeMethod != oidc.CodeChallengeMethodS256 || req.CodeChallenge == "" {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest().WithDescription("PKCE required"))
		return
	}
	p.mu.Lock()
	u, ok := p.refreshTokens[req.RefreshToken]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("unknown refresh token"))
		return
	}
	if _, _, err := p.verifyAssertion(req.JWT, assertion.TypeApp2App, oidc.ChallengePurposeApp2App); err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidGrant().WithDescription("%v", err))
		return
	}
	p.mu.Lock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = codeGrant{
		subject:       u.subject,
		clientID:      req.ClientID,
		redirectURI:   req.RedirectURI,
		codeChallenge: req.CodeChallenge,
	}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, &oidc.AccessTokenResponse{Code: code})
}

func (p *IdP) issue(w http.ResponseWriter, u user) {
	writeJSON(w, http.StatusOK, p.newTokens(u, true))
}

func (p *IdP) newTokens(u user, withRefreshToken bool) *oidc.AccessTokenResponse {
	idToken, _ := p.Keys.NewIDToken(p.URL(), u.subject, "client", u.anonymous, time.Hour)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	resp := &oidc.AccessTokenResponse{
		AccessToken: fmt.Sprintf("at-%d", p.seq),
		TokenType:   oidc.BearerToken,
		ExpiresIn:   p.expiresIn,
		IDToken:     idToken,
	}
	p.accessTokens[resp.AccessToken] = u
	if withRefreshToken {
		resp.RefreshToken = fmt.Sprintf("rt-%d", p.seq)
		p.refreshTokens[resp.RefreshToken] = u
	}
	return resp
}

func (p *IdP) bearer(r *http.Request) (user, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), oidc.BearerToken+" ")
	if !ok {
		return user{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.accessTokens[token]
	return u, ok
}

func (p *IdP) userinfo(w http.ResponseWriter, r *http.Request) {
	u, ok := p.bearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, &oidc.Error{ErrorType: "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                 u.subject,
		oidc.ClaimIsAnonymous: u.anonymous,
		oidc.ClaimIsVerified:  !u.anonymous,
	})
}

func (p *IdP) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oidc.ErrInvalidRequest())
		return
	}
	p.mu.Lock()
	delete(p.refreshTokens, r.PostForm.Get("token"))
	p.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (p *IdP) challenge(w http.ResponseWriter, r *http.Request) {
	req := new(oidc.ChallengeRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Purpose == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": &oidc.ServerError{Name: "BadRequest", Reason: "ValidationFailed", Message: "invalid purpose"},
		})
		return
	}
	p.mu.Lock()
	p.seq++
	token := fmt.Sprintf("challenge-%d", p.seq)
	p.challenges[token] = req.Purpose
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, &oidc.ChallengeResponse{
		Result: &oidc.Challenge{
			Token:    token,
			ExpireAt: oidc.RFC3339Time(time.Now().Add(5 * time.Minute)),
		},
	})
}

// verifyAssertion checks the signature, type and challenge of a device key
// assertion. Keys embedded as jwk are registered under their kid.
func (p *IdP) verifyAssertion(raw string, typ assertion.Type, purpose oidc.ChallengePurpose) (string, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Header["typ"] != string(typ) {
			return nil, fmt.Errorf("unexpected typ %v", t.Header["typ"])
		}
		kid, _ := t.Header["kid"].(string)
		if embedded, ok := t.Header["jwk"]; ok {
			data, err := json.Marshal(embedded)
			if err != nil {
				return nil, err
			}
			var jwk jose.JSONWebKey
			if err := jwk.UnmarshalJSON(data); err != nil {
				return nil, err
			}
			key, ok := jwk.Key.(*ecdsa.PublicKey)
			if !ok || jwk.KeyID != kid {
				return nil, errors.New("invalid jwk")
			}
			p.mu.Lock()
			p.deviceKeys[kid] = key
			p.mu.Unlock()
			return key, nil
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		key, ok := p.deviceKeys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return "", nil, err
	}

	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	if exp-iat != assertion.Lifetime.Seconds() {
		return "", nil, errors.New("unexpected assertion lifetime")
	}
	challenge, _ := claims["challenge"].(string)
	p.mu.Lock()
	defer p.mu.Unlock()
	if got, ok := p.challenges[challenge]; !ok || got != purpose {
		return "", nil, errors.New("invalid challenge")
	}
	delete(p.challenges, challenge)
	p.assertions = append(p.assertions, token)
	kid, _ := token.Header["kid"].(string)
	return kid, claims, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI string, oauthErr *oidc.Error) {
	v := url.Values{oidc.ParamError: {oauthErr.Code()}}
	if oauthErr.Description != "" {
		v.Set(oidc.ParamErrorDescription, oauthErr.Description)
	}
	http.Redirect(w, r, appendQuery(redirectURI, v), http.StatusFound)
}

func appendQuery(rawURL string, v url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, values := range v {
		q[k] = values
	}
	u.RawQuery = q.Encode()
	return u.String()
}
