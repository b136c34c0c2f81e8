package auth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"

	"github.com/unclemantis/stacks.js/auth/internal/strutils"
)

const (
	// DefaultAuthenticatorURL is the hosted identity-provider flow used
	// when no native protocol handler takes over.
	DefaultAuthenticatorURL = "https://browser.blockstack.org/auth"

	// DefaultCoreAPIEndpoint is the core node used to verify auth
	// responses unless the response itself carries an override.
	DefaultCoreAPIEndpoint = "https://core.blockstack.org"

	// DefaultGaiaHubURL is the storage hub adopted when the response does
	// not carry one (or its protocol version is too old to trust it).
	DefaultGaiaHubURL = "https://hub.blockstack.org"

	// DefaultCustomProtocolURI is the custom URI scheme a native handler
	// may be registered for.
	DefaultCustomProtocolURI = "blockstack:"
)

// Config holds the per-flow configuration for a sign-in client. A Config is
// owned by one logical flow: the core API endpoint override carried in an
// auth response mutates the flow's copy, never package state, and is not
// persisted across process restarts unless the caller persists the Config.
type Config struct {
	// AppDomain is the origin of the application requesting sign-in.
	AppDomain string

	// AuthenticatorURL is the hosted flow URL the request token is
	// dispatched to.
	AuthenticatorURL string

	// CoreAPIEndpoint is the endpoint auth responses are verified
	// against.
	CoreAPIEndpoint string

	// CustomProtocolURI is the custom scheme tried before falling back to
	// the hosted flow.
	CustomProtocolURI string

	// ManifestURI is the app manifest presented to the identity provider.
	// Defaults to AppDomain + "/manifest.json".
	ManifestURI string

	// RedirectURI is where the identity provider sends the auth response.
	// Defaults to AppDomain + "/".
	RedirectURI string

	// Scopes are the permission scopes requested of the identity
	// provider.
	Scopes []string

	// ProviderCA is an optional CA cert to use when fetching profiles or
	// calling the verification endpoint.
	ProviderCA string

	// Logger is an optional logger
	Logger hclog.Logger

	// nowFunc is an optional function for determining the current time,
	// for tests.
	nowFunc func() time.Time
}

// NewConfig composes a new config for a sign-in client.
// Supported options: WithAuthenticatorURL, WithCoreAPIEndpoint,
// WithCustomProtocolURI, WithManifestURI, WithRedirectURI, WithScopes,
// WithProviderCA, WithLogger, WithNow.
func NewConfig(appDomain string, opt ...Option) (*Config, error) {
	const op = "auth.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		AppDomain:         appDomain,
		AuthenticatorURL:  opts.withAuthenticatorURL,
		CoreAPIEndpoint:   opts.withCoreAPIEndpoint,
		CustomProtocolURI: opts.withCustomProtocolURI,
		ManifestURI:       opts.withManifestURI,
		RedirectURI:       opts.withRedirectURI,
		Scopes:            opts.withScopes,
		ProviderCA:        opts.withProviderCA,
		Logger:            opts.withLogger,
		nowFunc:           opts.withNowFunc,
	}
	if c.ManifestURI == "" && appDomain != "" {
		c.ManifestURI = appDomain + "/manifest.json"
	}
	if c.RedirectURI == "" && appDomain != "" {
		c.RedirectURI = appDomain + "/"
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the client configuration. It verifies the app domain and the
// configured URLs parse with an http or https scheme, but it does not verify
// any of them are reachable.
func (c *Config) Validate() error {
	const op = "auth.Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if c.AppDomain == "" {
		return fmt.Errorf("%s: app domain is empty: %w", op, ErrInvalidParameter)
	}
	for name, raw := range map[string]string{
		"app domain":        c.AppDomain,
		"authenticator URL": c.AuthenticatorURL,
		"core API endpoint": c.CoreAPIEndpoint,
		"manifest URI":      c.ManifestURI,
		"redirect URI":      c.RedirectURI,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %s %q is invalid: %w", op, name, raw, err)
		}
		if !strutils.StrListContains([]string{"http", "https"}, u.Scheme) {
			return fmt.Errorf("%s: %s %q scheme is not http or https: %w", op, name, raw, ErrInvalidParameter)
		}
	}
	return nil
}

// HTTPClient creates a new http client for the configured flow, using the
// optional ProviderCA if provided, otherwise the installed system CA chain.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "auth.Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// clone returns a flow-local copy, so a response's endpoint override never
// leaks into the caller's Config.
func (c *Config) clone() *Config {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

func (c *Config) logger() hclog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}

func (c *Config) now() time.Time {
	if c != nil && c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now()
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withAuthenticatorURL  string
	withCoreAPIEndpoint   string
	withCustomProtocolURI string
	withManifestURI       string
	withRedirectURI       string
	withScopes            []string
	withProviderCA        string
	withLogger            hclog.Logger
	withNowFunc           func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withAuthenticatorURL:  DefaultAuthenticatorURL,
		withCoreAPIEndpoint:   DefaultCoreAPIEndpoint,
		withCustomProtocolURI: DefaultCustomProtocolURI,
		withScopes:            []string{"store_write"},
	}
}

// getConfigOpts gets the config defaults and applies the opt overrides
// passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthenticatorURL provides an optional hosted-flow URL for the config.
func WithAuthenticatorURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthenticatorURL = u
		}
	}
}

// WithCoreAPIEndpoint provides an optional core API endpoint for the config.
func WithCoreAPIEndpoint(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCoreAPIEndpoint = u
		}
	}
}

// WithCustomProtocolURI provides an optional custom URI scheme for the
// config.
func WithCustomProtocolURI(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCustomProtocolURI = u
		}
	}
}

// WithManifestURI provides an optional app manifest URI for the config.
func WithManifestURI(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withManifestURI = u
		}
	}
}

// WithRedirectURI provides an optional redirect URI for the config.
func WithRedirectURI(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectURI = u
		}
	}
}

// WithScopes provides an optional list of permission scopes for the config.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithProviderCA provides an optional CA cert for the config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for the config.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
