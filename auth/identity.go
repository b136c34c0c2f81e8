package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 addresses are defined over ripemd160
)

// AddressDeriver derives a chain address from an issuer's decentralized
// identifier, failing on malformed identifiers.
type AddressDeriver interface {
	Address(did string) (string, error)
}

// HashAddressDeriver is the default AddressDeriver. A "did:btc-addr" DID
// already names its address; a "did:ecdsa-pub" DID carries a hex public key
// which is reduced to a base58check-encoded hash160 address.
type HashAddressDeriver struct{}

var _ AddressDeriver = (*HashAddressDeriver)(nil)

// Address derives the chain address for the given DID. It satisfies the
// AddressDeriver interface.
func (HashAddressDeriver) Address(did string) (string, error) {
	const op = "auth.HashAddressDeriver.Address"
	method, id, err := parseDID(did)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	switch method {
	case "btc-addr":
		return id, nil
	case "ecdsa-pub":
		pub, err := hex.DecodeString(id)
		if err != nil {
			return "", fmt.Errorf("%s: public key in %q is not hex: %w", op, did, ErrMalformedDID)
		}
		return publicKeyToAddress(pub), nil
	default:
		return "", fmt.Errorf("%s: unsupported DID method %q: %w", op, method, ErrMalformedDID)
	}
}

// parseDID splits a decentralized identifier into its method and
// method-specific id.
func parseDID(did string) (method, id string, err error) {
	const op = "auth.parseDID"
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%s: %q: %w", op, did, ErrMalformedDID)
	}
	return parts[1], parts[2], nil
}

// publicKeyToAddress computes the version-0 base58check address of a public
// key: base58check(0x00 || ripemd160(sha256(pub))).
func publicKeyToAddress(pub []byte) string {
	s := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(s[:])
	payload := append([]byte{0x00}, r.Sum(nil)...)
	return base58CheckEncode(payload)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58CheckEncode appends a 4-byte double-sha256 checksum and encodes in
// base58 with leading zero bytes mapped to '1'.
func base58CheckEncode(payload []byte) string {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	full := append(append([]byte(nil), payload...), second[:4]...)

	x := new(big.Int).SetBytes(full)
	radix := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for x.Sign() > 0 {
		x.DivMod(x, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range full {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
