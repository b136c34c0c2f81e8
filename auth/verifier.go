package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"

	"gopkg.in/square/go-jose.v2"
)

// TokenVerifier validates an auth response token against a verification
// endpoint. A false result means the response is not acceptable; an error
// means verification itself could not be performed. The endpoint is the
// core API endpoint resolved for the flow, which implementations may use
// for server-side claim checks (for example, name ownership lookups).
type TokenVerifier interface {
	Verify(ctx context.Context, token ResponseToken, endpoint string) (bool, error)
}

// StaticVerifier verifies response-token signatures using local public
// keys. It ignores the verification endpoint; claim checks beyond the
// signature are the caller's concern.
type StaticVerifier struct {
	publicKeys []crypto.PublicKey
}

var _ TokenVerifier = (*StaticVerifier)(nil)

// NewStaticVerifier returns a StaticVerifier that accepts tokens signed by
// any of the given public keys.
func NewStaticVerifier(publicKeys []crypto.PublicKey) (*StaticVerifier, error) {
	const op = "auth.NewStaticVerifier"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: no public keys provided: %w", op, ErrInvalidParameter)
	}
	return &StaticVerifier{publicKeys: publicKeys}, nil
}

// Verify parses the token and checks its signature against the local keys.
// It satisfies the TokenVerifier interface.
func (v *StaticVerifier) Verify(ctx context.Context, token ResponseToken, endpoint string) (bool, error) {
	const op = "auth.StaticVerifier.Verify"
	if token == "" {
		return false, fmt.Errorf("%s: response token is empty: %w", op, ErrInvalidParameter)
	}
	jws, err := jose.ParseSigned(string(token))
	if err != nil {
		return false, fmt.Errorf("%s: unable to parse response token: %w", op, err)
	}
	for _, key := range v.publicKeys {
		if _, err := jws.Verify(key); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// PayloadKeyVerifier is the default TokenVerifier. Response tokens are
// self-signed: the signing keys are named in the payload's public_keys
// claim. A token verifies when its signature checks out against one of
// those keys AND the issuer DID binds to that same key (its derived
// address matches the key's address), so a forger cannot simply name their
// own key. The endpoint is unused; hosts that need server-side claim
// checks supply their own TokenVerifier.
type PayloadKeyVerifier struct {
	deriver AddressDeriver
}

var _ TokenVerifier = (*PayloadKeyVerifier)(nil)

// Verify checks the token's signature against the payload's own public
// keys and the issuer binding. It satisfies the TokenVerifier interface.
func (v *PayloadKeyVerifier) Verify(ctx context.Context, token ResponseToken, endpoint string) (bool, error) {
	const op = "auth.PayloadKeyVerifier.Verify"
	payload, err := DecodePayload(token)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if len(payload.PublicKeys) == 0 {
		return false, nil
	}
	jws, err := jose.ParseSigned(string(token))
	if err != nil {
		return false, fmt.Errorf("%s: unable to parse response token: %w", op, err)
	}
	deriver := v.deriver
	if deriver == nil {
		deriver = HashAddressDeriver{}
	}
	issuerAddress, err := deriver.Address(payload.Issuer)
	if err != nil {
		return false, fmt.Errorf("%s: unable to derive issuer address: %w", op, err)
	}
	for _, keyHex := range payload.PublicKeys {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			continue
		}
		pub, err := parseP256PublicKey(raw)
		if err != nil {
			continue
		}
		if _, err := jws.Verify(pub); err != nil {
			continue
		}
		if publicKeyToAddress(raw) != issuerAddress {
			continue
		}
		return true, nil
	}
	return false, nil
}

// parseP256PublicKey parses a SEC1-encoded P-256 point, compressed or
// uncompressed.
func parseP256PublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	const op = "auth.parseP256PublicKey"
	curve := elliptic.P256()
	var x, y *big.Int
	switch len(raw) {
	case 33:
		x, y = elliptic.UnmarshalCompressed(curve, raw)
	case 65:
		x, y = elliptic.Unmarshal(curve, raw)
	default:
		return nil, fmt.Errorf("%s: unexpected key length %d: %w", op, len(raw), ErrInvalidParameter)
	}
	if x == nil {
		return nil, fmt.Errorf("%s: invalid point: %w", op, ErrInvalidParameter)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
