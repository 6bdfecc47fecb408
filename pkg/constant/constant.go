package constant

const (
	DefaultTokenType = "Bearer"

	// SessionCookieName carries the signed session token for browser clients.
	SessionCookieName = "session_token"

	// HeaderSessionToken is set on responses when the gate re-issues a token.
	HeaderSessionToken = "X-Session-Token"

	HeaderRequestID = "X-Request-Id"

	AnonymousActor = "anonymous"
)
