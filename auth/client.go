package auth

import (
	"fmt"
)

// Client drives one application's sign-in flows against an identity
// provider: dispatching authentication requests, detecting pending
// responses, resolving responses into committed sessions, and signing out.
//
// A Client does not lock across calls. Correctness of the at-most-once
// session commit relies on the host invoking response resolution at most
// once per navigation; the already-signed-in guard rejects stragglers.
type Client struct {
	config    *Config
	store     SessionStore
	env       Environment
	verifier  TokenVerifier
	decrypter Decrypter
	deriver   AddressDeriver
	unwrapper ProfileUnwrapper
}

// NewClient creates a sign-in client. The environment may be nil for hosts
// that pass tokens explicitly; any operation that then needs ambient
// navigation state fails with ErrEnvironmentUnavailable.
// Supported options: WithTokenVerifier, WithDecrypter, WithAddressDeriver,
// WithProfileUnwrapper.
func NewClient(config *Config, store SessionStore, env Environment, opt ...Option) (*Client, error) {
	const op = "auth.NewClient"
	if config == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getClientOpts(opt...)
	c := &Client{
		config:    config,
		store:     store,
		env:       env,
		verifier:  opts.withTokenVerifier,
		decrypter: opts.withDecrypter,
		deriver:   opts.withAddressDeriver,
		unwrapper: opts.withProfileUnwrapper,
	}
	return c, nil
}

// navigate guards Navigate against a missing environment.
func (c *Client) navigate(url string) error {
	const op = "auth.Client.navigate"
	if c.env == nil {
		return fmt.Errorf("%s: no navigation context: %w", op, ErrEnvironmentUnavailable)
	}
	return c.env.Navigate(url)
}

// clientOptions is the set of available options for NewClient
type clientOptions struct {
	withTokenVerifier    TokenVerifier
	withDecrypter        Decrypter
	withAddressDeriver   AddressDeriver
	withProfileUnwrapper ProfileUnwrapper
}

// clientDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withTokenVerifier:    &PayloadKeyVerifier{},
		withDecrypter:        TransitDecrypter{},
		withAddressDeriver:   HashAddressDeriver{},
		withProfileUnwrapper: JoseUnwrapper{},
	}
}

// getClientOpts gets the client defaults and applies the opt overrides
// passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTokenVerifier provides an optional response-token verifier for the
// client.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && v != nil {
			o.withTokenVerifier = v
		}
	}
}

// WithDecrypter provides an optional secret decrypter for the client.
func WithDecrypter(d Decrypter) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && d != nil {
			o.withDecrypter = d
		}
	}
}

// WithAddressDeriver provides an optional DID address deriver for the
// client.
func WithAddressDeriver(d AddressDeriver) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && d != nil {
			o.withAddressDeriver = d
		}
	}
}

// WithProfileUnwrapper provides an optional profile-token unwrapper for the
// client.
func WithProfileUnwrapper(u ProfileUnwrapper) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && u != nil {
			o.withProfileUnwrapper = u
		}
	}
}
