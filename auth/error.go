package auth

import (
	"errors"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")

	// ErrEnvironmentUnavailable is returned when an ambient capability
	// (query state, navigation, user agent) is not available in the
	// current host environment.
	ErrEnvironmentUnavailable = errors.New("unavailable in this environment")

	// ErrAlreadySignedIn is returned when a session record already holds
	// user data. A second completion attempt is rejected, never merged.
	ErrAlreadySignedIn = errors.New("user is already signed in")

	// ErrMalformedTokenPayload is returned when a response token's payload
	// does not decode to a structured record (for example, a bare string).
	ErrMalformedTokenPayload = errors.New("malformed token payload")

	// ErrMissingTransitKey is returned when the response protocol version
	// requires secret decryption but no transit key is stored in the
	// session record.
	ErrMissingTransitKey = errors.New("missing transit key")

	// ErrInvalidResponse is returned when the auth response token fails
	// verification.
	ErrInvalidResponse = errors.New("invalid auth response")

	// ErrSecretDecryptionFailed is returned when the app private key can
	// neither be decrypted with the transit key nor parsed as a raw key.
	ErrSecretDecryptionFailed = errors.New("secret decryption failed")

	// ErrEchoPendingTimeout is returned when a protocol echo reply was
	// detected but the host never navigated away within the grace period.
	ErrEchoPendingTimeout = errors.New("page should have redirected")

	// ErrMalformedDID is returned when an issuer identifier cannot be
	// parsed as a decentralized identifier.
	ErrMalformedDID = errors.New("malformed decentralized identifier")

	ErrIDGeneratorFailed = errors.New("id generation failed")
)
