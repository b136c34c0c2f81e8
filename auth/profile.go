package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gopkg.in/square/go-jose.v2"
)

// ProfileUnwrapper extracts the embedded JSON-LD profile object from one
// signed profile token.
type ProfileUnwrapper interface {
	Unwrap(token string) (map[string]interface{}, error)
}

// JoseUnwrapper is the default ProfileUnwrapper. It decodes the wrapped
// token's payload and returns its claim object. Signature verification of
// profile tokens is out of scope here; hosts that require it supply their
// own ProfileUnwrapper.
type JoseUnwrapper struct{}

var _ ProfileUnwrapper = (*JoseUnwrapper)(nil)

// Unwrap returns the profile object embedded in the wrapped token's "claim"
// field. It satisfies the ProfileUnwrapper interface.
func (JoseUnwrapper) Unwrap(token string) (map[string]interface{}, error) {
	const op = "auth.JoseUnwrapper.Unwrap"
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse profile token: %w", op, err)
	}
	var payload struct {
		Claim map[string]interface{} `json:"claim"`
	}
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &payload); err != nil {
		return nil, fmt.Errorf("%s: unable to decode profile token payload: %w", op, err)
	}
	if payload.Claim == nil {
		return nil, fmt.Errorf("%s: profile token has no claim: %w", op, ErrInvalidParameter)
	}
	return payload.Claim, nil
}

// DefaultProfile returns the minimal Person profile stub substituted when a
// profile fetch fails.
func DefaultProfile() map[string]interface{} {
	return map[string]interface{}{
		"@type":    "Person",
		"@context": "http://schema.org",
	}
}

// wrappedProfile is one element of the token file a profile URL serves.
type wrappedProfile struct {
	Token string `json:"token"`
}

// resolveProfile resolves the profile for a response payload. An inline
// profile wins verbatim. With only a profile URL, the URL is fetched: a
// non-2xx result degrades to DefaultProfile, a 2xx body is parsed as a
// one-element collection of wrapped profile tokens and element zero is
// unwrapped. With neither, the profile stays nil; the default stub is a
// fetch-failure fallback only.
func (c *Client) resolveProfile(ctx context.Context, cfg *Config, payload *Payload) (map[string]interface{}, error) {
	const op = "auth.Client.resolveProfile"
	if payload.Profile != nil {
		return payload.Profile, nil
	}
	if payload.ProfileURL == "" {
		return nil, nil
	}

	client, err := cfg.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to build profile request: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: profile fetch failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cfg.logger().Warn("profile fetch returned non-success status, using default profile",
			"url", payload.ProfileURL, "status", resp.StatusCode)
		return DefaultProfile(), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read profile response: %w", op, err)
	}
	var wrapped []wrappedProfile
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%s: unable to decode wrapped profile tokens: %w", op, err)
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("%s: profile URL returned no tokens: %w", op, ErrInvalidParameter)
	}
	profile, err := c.unwrapper.Unwrap(wrapped[0].Token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to unwrap profile token: %w", op, err)
	}
	return profile, nil
}
