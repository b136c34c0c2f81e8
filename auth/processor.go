package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultEchoReplyGrace is how long response resolution waits on an echo
// reply for the host to navigate away before giving up with
// ErrEchoPendingTimeout.
const DefaultEchoReplyGrace = 3 * time.Second

// SecretOutcome tags how a response secret was resolved, so callers and
// tests can tell which branch fired instead of inferring it from logs.
type SecretOutcome int

const (
	// SecretPassthrough means the protocol version required no
	// decryption and the raw value was used as given.
	SecretPassthrough SecretOutcome = iota

	// SecretDecrypted means the transit key opened the ciphertext.
	SecretDecrypted

	// SecretRawFallback means decryption failed and the raw value was
	// used instead.
	SecretRawFallback

	// SecretFailed means decryption failed and no fallback applied.
	SecretFailed
)

func (o SecretOutcome) String() string {
	switch o {
	case SecretPassthrough:
		return "passthrough"
	case SecretDecrypted:
		return "decrypted"
	case SecretRawFallback:
		return "raw-fallback"
	case SecretFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// secretResult is the resolution of one response secret.
type secretResult struct {
	outcome SecretOutcome
	value   string
	err     error
}

// HandlePendingSignIn resolves the pending authentication response into a
// committed session and returns the resulting user data.
//
// The resolution pipeline: echo-reply gate, already-signed-in guard,
// payload decode, endpoint resolution (adopting a version-gated API
// override from the payload), token verification, version-gated secret
// decryption, identity derivation, profile resolution, and a single commit
// of the assembled UserData into the session record.
//
// Hard failures surface as typed errors (ErrAlreadySignedIn,
// ErrMalformedTokenPayload, ErrMissingTransitKey, ErrInvalidResponse,
// ErrSecretDecryptionFailed, ErrEchoPendingTimeout); soft degradations
// (core session token falling back to its raw value, profile fetch
// degrading to the default profile) are logged and invisible here.
// Supported options: WithAuthResponse, WithTransitKey, WithEchoGrace.
func (c *Client) HandlePendingSignIn(ctx context.Context, opt ...Option) (*UserData, error) {
	const op = "auth.Client.HandlePendingSignIn"
	opts := getSignInOpts(opt...)
	logger := c.config.logger()

	// An echo reply is expected to navigate away before the grace period
	// elapses; reaching the deadline means the handshake redirect never
	// happened.
	if c.detectProtocolEchoReply(ctx) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(opts.withEchoGrace):
			return nil, fmt.Errorf("%s: echo reply did not navigate away: %w", op, ErrEchoPendingTimeout)
		}
	}

	record, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read session record: %w", op, err)
	}
	if record == nil {
		record = &SessionRecord{}
	}
	if record.UserData != nil {
		return nil, fmt.Errorf("%s: session already holds user data: %w", op, ErrAlreadySignedIn)
	}

	token := opts.withAuthResponse
	if token == "" {
		raw, err := queryValue(c.env, authResponseParam)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read auth response from navigation: %w", op, err)
		}
		token = ResponseToken(raw)
	}
	if token == "" {
		return nil, fmt.Errorf("%s: no auth response token: %w", op, ErrInvalidParameter)
	}

	payload, err := DecodePayload(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Endpoint resolution. The override is adopted on a flow-local copy
	// of the config for verification and all subsequent calls; it is not
	// persisted beyond this Config's lifetime.
	cfg := c.config.clone()
	if isLaterVersion(payload.ProtocolVersion, versionAPIOverrideThreshold) && payload.CoreAPIEndpoint != "" {
		logger.Info("adopting core API endpoint from auth response",
			"endpoint", payload.CoreAPIEndpoint, "version", payload.ProtocolVersion)
		cfg.CoreAPIEndpoint = payload.CoreAPIEndpoint
	}

	valid, err := c.verifier.Verify(ctx, token, cfg.CoreAPIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: token verification failed: %w", op, err)
	}
	if !valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidResponse)
	}

	appPrivateKey := payload.PrivateKey
	coreSessionToken := payload.CoreSessionToken
	if isLaterVersion(payload.ProtocolVersion, versionDecryptThreshold) {
		transitKey := opts.withTransitKey
		if transitKey == nil {
			transitKey = record.TransitKey
		}
		if transitKey == nil {
			return nil, fmt.Errorf("%s: protocol version %s requires a transit key: %w",
				op, payload.ProtocolVersion, ErrMissingTransitKey)
		}

		if appPrivateKey != "" {
			res := c.decryptPrivateKey(transitKey, appPrivateKey)
			switch res.outcome {
			case SecretDecrypted:
				appPrivateKey = res.value
			case SecretRawFallback:
				logger.Warn("app private key was not encrypted to the transit key, using raw value")
			case SecretFailed:
				return nil, fmt.Errorf("%s: %w", op, res.err)
			}
		}
		if coreSessionToken != "" {
			res := c.decryptCoreSessionToken(transitKey, coreSessionToken)
			switch res.outcome {
			case SecretDecrypted:
				coreSessionToken = res.value
			case SecretRawFallback:
				logger.Info("core session token decryption failed, using raw value")
			}
		}
	}

	hubURL := DefaultGaiaHubURL
	if isLaterVersion(payload.ProtocolVersion, versionHubURLThreshold) && payload.HubURL != "" {
		hubURL = payload.HubURL
	}
	var associationToken string
	if isLaterVersion(payload.ProtocolVersion, versionAssociationThreshold) && payload.AssociationToken != "" {
		associationToken = payload.AssociationToken
	}

	identityAddress, err := c.deriver.Address(payload.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to derive identity address: %w", op, err)
	}

	profile, err := c.resolveProfile(ctx, cfg, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userData := &UserData{
		Username:             payload.Username,
		Email:                payload.Email,
		DecentralizedID:      payload.Issuer,
		IdentityAddress:      identityAddress,
		AppPrivateKey:        appPrivateKey,
		HubURL:               hubURL,
		CoreAPIEndpoint:      cfg.CoreAPIEndpoint,
		AuthResponseToken:    token,
		CoreSessionToken:     coreSessionToken,
		GaiaAssociationToken: associationToken,
		Profile:              profile,
	}
	record.UserData = userData
	if err := c.store.Set(ctx, record); err != nil {
		return nil, fmt.Errorf("%s: unable to commit session record: %w", op, err)
	}
	return userData, nil
}

// decryptPrivateKey resolves the app private key secret. Decryption failure
// falls back to treating the raw value as an unencrypted key when it is
// structurally well formed; otherwise the transit key likely changed
// between request and response and the failure is hard.
func (c *Client) decryptPrivateKey(key *TransitKeyPair, ciphertext string) secretResult {
	plaintext, err := c.decrypter.Decrypt(key, ciphertext)
	if err == nil {
		return secretResult{outcome: SecretDecrypted, value: plaintext}
	}
	if isWellFormedPrivateKey(ciphertext) {
		return secretResult{outcome: SecretRawFallback, value: ciphertext}
	}
	var merr *multierror.Error
	merr = multierror.Append(merr, err)
	merr = multierror.Append(merr, fmt.Errorf("raw value is not a well-formed private key"))
	return secretResult{
		outcome: SecretFailed,
		err: fmt.Errorf("unable to decrypt app private key, transit key may have changed between request and response: %v: %w",
			merr, ErrSecretDecryptionFailed),
	}
}

// decryptCoreSessionToken resolves the core session token secret. The token
// is advisory to a legacy subsystem, so decryption failure silently falls
// back to the raw value with no structural check.
func (c *Client) decryptCoreSessionToken(key *TransitKeyPair, ciphertext string) secretResult {
	plaintext, err := c.decrypter.Decrypt(key, ciphertext)
	if err != nil {
		return secretResult{outcome: SecretRawFallback, value: ciphertext, err: err}
	}
	return secretResult{outcome: SecretDecrypted, value: plaintext}
}

// signInOptions is the set of available options for
// Client.HandlePendingSignIn
type signInOptions struct {
	withAuthResponse ResponseToken
	withTransitKey   *TransitKeyPair
	withEchoGrace    time.Duration
}

// signInDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func signInDefaults() signInOptions {
	return signInOptions{
		withEchoGrace: DefaultEchoReplyGrace,
	}
}

// getSignInOpts gets the sign-in defaults and applies the opt overrides
// passed in.
func getSignInOpts(opt ...Option) signInOptions {
	opts := signInDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthResponse provides an optional response token, bypassing the
// ambient navigation query.
func WithAuthResponse(token ResponseToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withAuthResponse = token
		}
	}
}

// WithTransitKey provides an optional transit key, bypassing the one stored
// in the session record.
func WithTransitKey(key *TransitKeyPair) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok {
			o.withTransitKey = key
		}
	}
}

// WithEchoGrace provides an optional bound for the echo-reply wait.
func WithEchoGrace(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*signInOptions); ok && d > 0 {
			o.withEchoGrace = d
		}
	}
}
