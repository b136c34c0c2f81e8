package auth

import (
	"context"
)

// authResponseParam is the query parameter the identity provider returns
// the response token in.
const authResponseParam = "authResponse"

// IsSignInPending reports whether sign-in completion work is pending: the
// current navigation is not a protocol echo reply AND it carries a
// non-empty auth response token. Detection failures are logged and default
// to "not pending"; they never propagate.
func (c *Client) IsSignInPending(ctx context.Context) bool {
	if c.detectProtocolEchoReply(ctx) {
		return false
	}
	token, err := queryValue(c.env, authResponseParam)
	if err != nil {
		c.config.logger().Debug("pending sign-in detection failed, assuming none", "error", err)
		return false
	}
	return token != ""
}
