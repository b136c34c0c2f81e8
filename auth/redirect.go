package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/unclemantis/stacks.js/auth/internal/strutils"
)

// requestProtocolVersion is the protocol version this client speaks in its
// authentication requests.
const requestProtocolVersion = "1.3.1"

// DefaultLaunchTimeout bounds the race between a custom-protocol handler
// invocation and the hosted-flow fallback.
const DefaultLaunchTimeout = 500 * time.Millisecond

// authRequestParam is the query parameter the request token is dispatched
// under.
const authRequestParam = "authRequest"

// MakeAuthRequest generates a fresh transit key pair, persists it in the
// session record, and returns a signed authentication request token
// carrying the transit public key, app domain, manifest URI, redirect URI,
// and requested scopes. The token is signed with an ephemeral ES256 key
// generated per request.
func (c *Client) MakeAuthRequest(ctx context.Context) (string, error) {
	const op = "auth.Client.MakeAuthRequest"

	transitKey, err := GenerateTransitKey()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate transit key: %w", op, err)
	}
	record, err := c.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: unable to read session record: %w", op, err)
	}
	if record == nil {
		record = &SessionRecord{}
	}
	record.TransitKey = transitKey
	if err := c.store.Set(ctx, record); err != nil {
		return "", fmt.Errorf("%s: unable to persist transit key: %w", op, err)
	}

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate request signing key: %w", op, err)
	}
	jti, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate request id: %w", op, ErrIDGeneratorFailed)
	}
	signerPubHex := hex.EncodeToString(
		elliptic.MarshalCompressed(elliptic.P256(), signingKey.PublicKey.X, signingKey.PublicKey.Y))

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create request signer: %w", op, err)
	}

	now := c.config.now()
	claims := jwt.Claims{
		ID:       jti,
		Issuer:   "did:ecdsa-pub:" + signerPubHex,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(1 * time.Hour)),
	}
	requestClaims := map[string]interface{}{
		"public_keys":      []string{transitKey.PublicKeyHex()},
		"domain_name":      c.config.AppDomain,
		"manifest_uri":     c.config.ManifestURI,
		"redirect_uri":     c.config.RedirectURI,
		"version":          requestProtocolVersion,
		"supports_hub_url": true,
		"scopes":           strutils.RemoveDuplicatesStable(c.config.Scopes),
	}
	token, err := jwt.Signed(sig).Claims(claims).Claims(requestClaims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign request token: %w", op, err)
	}
	return token, nil
}

// RedirectToSignIn dispatches an authentication request to the identity
// provider. When no request token is supplied via WithAuthRequest, one is
// generated (persisting a fresh transit key). On a mobile user agent the
// hosted flow is navigated to directly; otherwise a custom-protocol handler
// launch is raced against a bounded timeout, and on failure or timeout the
// hosted flow is navigated to. The winning navigation is a fire-and-forget
// side effect; the loser's effect is discarded.
// Supported options: WithAuthRequest, WithLaunchTimeout.
func (c *Client) RedirectToSignIn(ctx context.Context, opt ...Option) error {
	const op = "auth.Client.RedirectToSignIn"
	if c.env == nil {
		return fmt.Errorf("%s: no navigation context: %w", op, ErrEnvironmentUnavailable)
	}
	opts := getRedirectOpts(opt...)
	logger := c.config.logger()

	token := opts.withAuthRequest
	if token == "" {
		var err error
		token, err = c.MakeAuthRequest(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	hostedURL := fmt.Sprintf("%s?%s=%s", c.config.AuthenticatorURL, authRequestParam, url.QueryEscape(token))

	ua, err := c.env.UserAgent()
	if err != nil {
		logger.Debug("user agent unavailable, assuming desktop", "error", err)
	}
	if isMobileUserAgent(ua) {
		// custom-scheme handlers are unreliable on mobile
		return c.navigate(hostedURL)
	}

	echoID, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("%s: unable to generate echo id: %w", op, ErrIDGeneratorFailed)
	}
	customURI := fmt.Sprintf("%s%s&echo=%s", c.config.CustomProtocolURI, url.QueryEscape(token), echoID)

	launchCtx, cancel := context.WithTimeout(ctx, opts.withLaunchTimeout)
	defer cancel()

	type launchResult struct {
		handled bool
		err     error
	}
	resultCh := make(chan launchResult, 1)
	go func() {
		handled, err := c.env.LaunchCustomProtocol(launchCtx, customURI)
		resultCh <- launchResult{handled: handled, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err == nil && r.handled {
			logger.Info("custom protocol handler detected, its navigation takes over")
			return nil
		}
		if r.err != nil {
			logger.Debug("custom protocol launch failed, falling back to hosted flow", "error", r.err)
		}
	case <-launchCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		logger.Debug("custom protocol launch timed out, falling back to hosted flow")
	}
	return c.navigate(hostedURL)
}

// isMobileUserAgent reports whether the user agent identifies a mobile
// platform.
func isMobileUserAgent(ua string) bool {
	for _, marker := range []string{"Android", "iPhone", "iPad", "iPod", "Windows Phone", "Mobile"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// redirectOptions is the set of available options for
// Client.RedirectToSignIn
type redirectOptions struct {
	withAuthRequest   string
	withLaunchTimeout time.Duration
}

// redirectDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func redirectDefaults() redirectOptions {
	return redirectOptions{
		withLaunchTimeout: DefaultLaunchTimeout,
	}
}

// getRedirectOpts gets the redirect defaults and applies the opt overrides
// passed in.
func getRedirectOpts(opt ...Option) redirectOptions {
	opts := redirectDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthRequest provides an optional pre-built request token for the
// redirect dispatcher.
func WithAuthRequest(token string) Option {
	return func(o interface{}) {
		if o, ok := o.(*redirectOptions); ok {
			o.withAuthRequest = token
		}
	}
}

// WithLaunchTimeout provides an optional bound for the custom-protocol
// handler race.
func WithLaunchTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*redirectOptions); ok && d > 0 {
			o.withLaunchTimeout = d
		}
	}
}
