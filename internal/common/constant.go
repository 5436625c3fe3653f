package common

const (
	// AuthorizationHeaderName carries the session credential on inbound requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the session token in the Authorization header.
	BearerPrefix = "Bearer "

	// OAuthStateCookieName binds an OAuth state value to the browser that started the flow.
	OAuthStateCookieName = "oauth_state"

	// OAuthLinkCookieName holds the link token while a link-accounts flow is
	// at the identity provider.
	OAuthLinkCookieName = "oauth_link"
)
