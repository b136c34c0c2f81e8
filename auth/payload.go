package auth

import (
	"encoding/json"
	"fmt"

	"gopkg.in/square/go-jose.v2"
)

// Payload is the decoded claims of an authentication response token. Field
// names follow the wire format produced by identity providers; optional
// fields are empty/nil when absent.
type Payload struct {
	// Issuer is the decentralized identifier of the responding identity.
	Issuer string `json:"iss"`

	// ProtocolVersion is the protocol version the provider spoke when
	// producing this response. It gates secret decryption and adoption of
	// the optional fields below.
	ProtocolVersion string `json:"version"`

	// PrivateKey is the app private key, possibly encrypted to the
	// requester's transit key.
	PrivateKey string `json:"private_key"`

	// CoreSessionToken is a legacy core-node session token, possibly
	// encrypted to the transit key.
	CoreSessionToken string `json:"core_token"`

	// HubURL is the user's Gaia storage hub, adopted only for protocol
	// versions later than versionHubURLThreshold.
	HubURL string `json:"hubUrl"`

	// AssociationToken grants the app scoped write access to the user's
	// storage hub, adopted only for protocol versions later than
	// versionAssociationThreshold.
	AssociationToken string `json:"associationToken"`

	// Profile is an inline JSON-LD profile object. When present it is used
	// verbatim and ProfileURL is ignored.
	Profile map[string]interface{} `json:"profile"`

	// ProfileURL points at the user's wrapped profile tokens.
	ProfileURL string `json:"profile_url"`

	Username string `json:"username"`
	Email    string `json:"email"`

	// CoreAPIEndpoint overrides the core API endpoint for verification and
	// subsequent calls, adopted only for protocol versions later than
	// versionAPIOverrideThreshold.
	CoreAPIEndpoint string `json:"blockstackAPIUrl"`

	// PublicKeys are the hex-encoded public keys the token was signed
	// with.
	PublicKeys []string `json:"public_keys"`
}

// DecodePayload decodes the payload of a compact signed response token
// without verifying its signature. The payload must be a structured JSON
// record: a bare-string payload (or anything else that is not an object) is
// a hard ErrMalformedTokenPayload.
func DecodePayload(token ResponseToken) (*Payload, error) {
	const op = "auth.DecodePayload"
	if token == "" {
		return nil, fmt.Errorf("%s: response token is empty: %w", op, ErrInvalidParameter)
	}
	jws, err := jose.ParseSigned(string(token))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse response token: %w", op, ErrMalformedTokenPayload)
	}
	raw := jws.UnsafePayloadWithoutVerification()

	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%s: payload is not valid JSON: %w", op, ErrMalformedTokenPayload)
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("%s: payload is not a structured record: %w", op, ErrMalformedTokenPayload)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%s: unable to decode payload: %w", op, ErrMalformedTokenPayload)
	}
	return &p, nil
}
