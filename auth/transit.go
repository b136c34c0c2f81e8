package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// transitKeyInfo binds the derived AEAD key to this protocol's transit
// encryption. Both sides must use the same info string.
const transitKeyInfo = "stacks.js/auth transit key v1"

// TransitKeyPair is the ephemeral key generated by the requester before
// redirecting, persisted in the session record, and used only to decrypt
// the private key and core session token carried in the response.
type TransitKeyPair struct {
	// ID names the key pair so a response can be matched to the request
	// that generated it.
	ID string `json:"id"`

	// Private is the clamped X25519 private scalar.
	Private []byte `json:"private"`

	// Public is the X25519 public key the identity provider encrypts to.
	Public []byte `json:"public"`
}

// RedactedTransitPrivateKey is the redacted string for a transit private key.
const RedactedTransitPrivateKey = "[REDACTED: transit private key]"

// String will redact the private scalar.
func (k *TransitKeyPair) String() string {
	if k == nil {
		return ""
	}
	return fmt.Sprintf("TransitKeyPair{ID: %s, Public: %s, Private: %s}",
		k.ID, hex.EncodeToString(k.Public), RedactedTransitPrivateKey)
}

// PublicKeyHex returns the hex encoding of the public key, the form carried
// in a request token's public_keys claim.
func (k *TransitKeyPair) PublicKeyHex() string {
	if k == nil {
		return ""
	}
	return hex.EncodeToString(k.Public)
}

// GenerateTransitKey returns a fresh X25519 transit key pair. The private
// scalar is clamped per RFC 7748.
func GenerateTransitKey() (*TransitKeyPair, error) {
	const op = "auth.GenerateTransitKey"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate key id: %w", op, ErrIDGeneratorFailed)
	}
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("%s: unable to read random scalar: %w", op, err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to derive public key: %w", op, err)
	}
	return &TransitKeyPair{
		ID:      id,
		Private: priv,
		Public:  pub,
	}, nil
}

// Decrypter decrypts a secret carried in an auth response using the
// requester's transit key. Implementations must fail (not return garbage)
// when the ciphertext was not sealed to the given key.
type Decrypter interface {
	Decrypt(key *TransitKeyPair, ciphertext string) (string, error)
}

// TransitDecrypter is the default Decrypter. It opens secrets sealed with
// SealToPublicKey: an ECIES-style construction of an ephemeral X25519
// agreement, HKDF-SHA256 key derivation, and a ChaCha20-Poly1305 AEAD.
type TransitDecrypter struct{}

var _ Decrypter = (*TransitDecrypter)(nil)

// Decrypt opens a sealed secret with the transit private key. It satisfies
// the Decrypter interface.
func (TransitDecrypter) Decrypt(key *TransitKeyPair, ciphertext string) (string, error) {
	const op = "auth.TransitDecrypter.Decrypt"
	if key == nil {
		return "", fmt.Errorf("%s: transit key is nil: %w", op, ErrNilParameter)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%s: ciphertext is not base64: %w", op, err)
	}
	if len(raw) < curve25519.PointSize+chacha20poly1305.NonceSize {
		return "", fmt.Errorf("%s: ciphertext too short: %w", op, ErrInvalidParameter)
	}
	ephemeralPub := raw[:curve25519.PointSize]
	nonce := raw[curve25519.PointSize : curve25519.PointSize+chacha20poly1305.NonceSize]
	sealed := raw[curve25519.PointSize+chacha20poly1305.NonceSize:]

	shared, err := curve25519.X25519(key.Private, ephemeralPub)
	if err != nil {
		return "", fmt.Errorf("%s: key agreement failed: %w", op, err)
	}
	aead, err := newTransitAEAD(shared, ephemeralPub, key.Public)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%s: unable to open sealed secret: %w", op, err)
	}
	return string(plaintext), nil
}

// SealToPublicKey seals a secret to a transit public key. It is the inverse
// of TransitDecrypter.Decrypt and is what an identity provider performs
// before embedding the secret in a response.
func SealToPublicKey(recipientPub []byte, plaintext string) (string, error) {
	const op = "auth.SealToPublicKey"
	if len(recipientPub) != curve25519.PointSize {
		return "", fmt.Errorf("%s: recipient public key must be %d bytes: %w", op, curve25519.PointSize, ErrInvalidParameter)
	}
	ephemeralPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeralPriv); err != nil {
		return "", fmt.Errorf("%s: unable to read random scalar: %w", op, err)
	}
	ephemeralPriv[0] &= 248
	ephemeralPriv[31] &= 127
	ephemeralPriv[31] |= 64
	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("%s: unable to derive ephemeral public key: %w", op, err)
	}
	shared, err := curve25519.X25519(ephemeralPriv, recipientPub)
	if err != nil {
		return "", fmt.Errorf("%s: key agreement failed: %w", op, err)
	}
	aead, err := newTransitAEAD(shared, ephemeralPub, recipientPub)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%s: unable to read random nonce: %w", op, err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(ephemeralPub)+len(nonce)+len(sealed))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func newTransitAEAD(shared, ephemeralPub, recipientPub []byte) (cipher.AEAD, error) {
	salt := make([]byte, 0, len(ephemeralPub)+len(recipientPub))
	salt = append(salt, ephemeralPub...)
	salt = append(salt, recipientPub...)
	kdf := hkdf.New(sha256.New, shared, salt, []byte(transitKeyInfo))
	aeadKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, aeadKey); err != nil {
		return nil, fmt.Errorf("unable to derive AEAD key: %w", err)
	}
	return chacha20poly1305.New(aeadKey)
}

// isWellFormedPrivateKey reports whether s parses as a raw app private key:
// 64 hex characters, or 66 ending in the compressed-key suffix "01". This is
// the structural check behind the raw-key fallback when transit decryption
// of the private key fails.
func isWellFormedPrivateKey(s string) bool {
	switch len(s) {
	case 64:
	case 66:
		if !strings.HasSuffix(s, "01") {
			return false
		}
	default:
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
