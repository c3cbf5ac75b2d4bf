package oidc

const (
	//ScopeOpenID defines the scope `openid`
	//OpenID Connect requests MUST contain the `openid` scope value
	ScopeOpenID = "openid"

	//ScopeOfflineAccess defines the scope `offline_access`
	//This (optional) scope value requests that an OAuth 2.0 Refresh Token be issued that can be used to obtain an Access Token
	//that grants access to the End-User's UserInfo Endpoint even when the End-User is not present (not logged in).
	ScopeOfflineAccess = "offline_access"

	//ScopeFullAccess is only granted to first-party clients and allows
	//the access token to be used against every API of the server.
	ScopeFullAccess = "https://authgear.com/scopes/full-access"

	//ResponseTypeCode for the Authorization Code Flow returning a code from the Authorization Server
	ResponseTypeCode ResponseType = "code"

	//PromptNone (`none`) disallows the Authorization Server to display any authentication or consent user interface pages.
	PromptNone Prompt = "none"

	//PromptLogin (`login`) directs the Authorization Server to prompt the End-User for reauthentication.
	PromptLogin Prompt = "login"

	//PromptConsent (`consent`) directs the Authorization Server to prompt the End-User for consent (of sharing information).
	PromptConsent Prompt = "consent"

	//PromptSelectAccount (`select_account `) directs the Authorization Server to prompt the End-User to select a user account
	PromptSelectAccount Prompt = "select_account"

	PageLogin  Page = "login"
	PageSignup Page = "signup"

	ColorSchemeLight ColorScheme = "light"
	ColorSchemeDark  ColorScheme = "dark"
)

// Query parameter names of the authorization request.
const (
	ParamResponseType        = "response_type"
	ParamClientID            = "client_id"
	ParamRedirectURI         = "redirect_uri"
	ParamState               = "state"
	ParamPrompt              = "prompt"
	ParamLoginHint           = "login_hint"
	ParamUILocales           = "ui_locales"
	ParamMaxAge              = "max_age"
	ParamIDTokenHint         = "id_token_hint"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamWechatRedirectURI   = "x_wechat_redirect_uri"
	ParamPlatform            = "x_platform"
	ParamPage                = "x_page"
	ParamColorScheme         = "x_color_scheme"

	ParamCode             = "code"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
)

// FirstPartyScopes and ThirdPartyScopes are the fixed scopes requested
// by the two client classifications.
var (
	FirstPartyScopes = []string{ScopeOpenID, ScopeOfflineAccess, ScopeFullAccess}
	ThirdPartyScopes = []string{ScopeOpenID, ScopeOfflineAccess}
)

type Prompt string

type ResponseType string

type Page string

type ColorScheme string
