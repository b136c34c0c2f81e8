package auth

import (
	"context"
)

// Query parameters of a protocol-handshake echo navigation. The identity
// provider's native handler briefly loads the app with an echoReply id to
// prove handler presence; the app must immediately redirect away to the
// authContinuation URL.
const (
	echoReplyParam        = "echoReply"
	authContinuationParam = "authContinuation"
)

// detectProtocolEchoReply reports whether the current navigation is a
// protocol-handshake echo reply rather than a real auth response. On
// detection it records the echo id and triggers the outward redirect. Every
// internal failure is swallowed and logged as "not an echo": this guard
// must never block unrelated navigation.
func (c *Client) detectProtocolEchoReply(ctx context.Context) bool {
	logger := c.config.logger()

	echoID, err := queryValue(c.env, echoReplyParam)
	if err != nil {
		logger.Debug("echo reply detection failed, assuming not an echo", "error", err)
		return false
	}
	if echoID == "" {
		return false
	}
	logger.Info("protocol echo reply detected", "echoReply", echoID)

	if seen := c.recordEchoReply(ctx, echoID); seen {
		logger.Debug("echo reply already handled, skipping redirect", "echoReply", echoID)
		return true
	}

	continuation, err := queryValue(c.env, authContinuationParam)
	if err != nil || continuation == "" {
		logger.Warn("echo reply carried no continuation URL", "error", err)
		return true
	}
	if err := c.navigate(continuation); err != nil {
		logger.Warn("unable to redirect to auth continuation", "error", err)
	}
	return true
}

// recordEchoReply marks the echo id as handled in the session record,
// reporting whether it had been seen before. Storage failures are logged
// and treated as unseen.
func (c *Client) recordEchoReply(ctx context.Context, echoID string) (seen bool) {
	logger := c.config.logger()
	record, err := c.store.Get(ctx)
	if err != nil {
		logger.Debug("unable to read session record for echo bookkeeping", "error", err)
		return false
	}
	if record == nil {
		record = &SessionRecord{}
	}
	for _, id := range record.EchoReplyIDs {
		if id == echoID {
			return true
		}
	}
	record.EchoReplyIDs = append(record.EchoReplyIDs, echoID)
	if err := c.store.Set(ctx, record); err != nil {
		logger.Debug("unable to record echo reply id", "error", err)
	}
	return false
}
