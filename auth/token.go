package auth

// ResponseToken is a compact signed authentication response token, produced
// externally by an identity provider and treated as opaque here.
type ResponseToken string

// RedactedResponseToken is the redacted string for an auth response token.
const RedactedResponseToken = "[REDACTED: auth response token]"

// String will redact the token. The raw value is still marshaled as-is,
// since session stores persist the record containing it.
func (t ResponseToken) String() string {
	return RedactedResponseToken
}
