package auth

import (
	"context"
	"fmt"
)

// Environment provides access to the ambient navigation context the sign-in
// flow runs in: the current URL's query parameters, the ability to navigate,
// the user-agent string, and an attempt to launch a custom-protocol handler.
// Implementations report a capability they cannot provide by returning an
// error wrapping ErrEnvironmentUnavailable rather than panicking.
type Environment interface {
	// QueryValue returns the named query parameter of the current
	// navigation, or "" if it is not present.
	QueryValue(name string) (string, error)

	// Navigate replaces the current navigation with the given URL. It is a
	// fire-and-forget side effect; the host may tear the process down as a
	// result.
	Navigate(url string) error

	// UserAgent returns the host's user-agent string.
	UserAgent() (string, error)

	// LaunchCustomProtocol attempts to hand the URI to a native
	// custom-scheme handler and reports whether one picked it up. It may
	// block while probing; callers bound it with a timeout.
	LaunchCustomProtocol(ctx context.Context, uri string) (handled bool, err error)
}

// queryValue reads a query parameter, guarding against a nil environment.
func queryValue(env Environment, name string) (string, error) {
	const op = "auth.queryValue"
	if env == nil {
		return "", fmt.Errorf("%s: no navigation context: %w", op, ErrEnvironmentUnavailable)
	}
	return env.QueryValue(name)
}
