package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestEnvironment is an Environment fake for tests: query parameters and the
// user agent are fixtures, navigations are recorded, and custom-protocol
// launches answer with a configured result after an optional delay. It is
// concurrently safe.
type TestEnvironment struct {
	mu sync.Mutex

	// Query holds the current navigation's query parameters.
	Query map[string]string

	// UA is the user-agent string; UAErr is returned instead when set.
	UA    string
	UAErr error

	// QueryErr, when set, is returned by every QueryValue call.
	QueryErr error

	// NavigateErr, when set, is returned by every Navigate call.
	NavigateErr error

	// Handled and LaunchErr are the custom-protocol launch answer,
	// delivered after LaunchDelay (or when the launch context ends,
	// whichever is first).
	Handled     bool
	LaunchErr   error
	LaunchDelay time.Duration

	navigations []string
	launches    []string
}

var _ Environment = (*TestEnvironment)(nil)

// QueryValue implements Environment.
func (e *TestEnvironment) QueryValue(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.QueryErr != nil {
		return "", e.QueryErr
	}
	return e.Query[name], nil
}

// Navigate implements Environment, recording the target URL.
func (e *TestEnvironment) Navigate(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NavigateErr != nil {
		return e.NavigateErr
	}
	e.navigations = append(e.navigations, url)
	return nil
}

// UserAgent implements Environment.
func (e *TestEnvironment) UserAgent() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.UAErr != nil {
		return "", e.UAErr
	}
	return e.UA, nil
}

// LaunchCustomProtocol implements Environment.
func (e *TestEnvironment) LaunchCustomProtocol(ctx context.Context, uri string) (bool, error) {
	e.mu.Lock()
	e.launches = append(e.launches, uri)
	delay := e.LaunchDelay
	handled, launchErr := e.Handled, e.LaunchErr
	e.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return handled, launchErr
}

// Navigations returns the URLs navigated to, in order.
func (e *TestEnvironment) Navigations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.navigations...)
}

// Launches returns the custom-protocol URIs attempted, in order.
func (e *TestEnvironment) Launches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.launches...)
}

// TestGenerateIdentityKey generates a test ECDSA P-256 identity key and
// returns it along with the hex of its compressed public point and its
// "did:ecdsa-pub" issuer DID.
func TestGenerateIdentityKey(t *testing.T) (priv *ecdsa.PrivateKey, pubHex, did string) {
	t.Helper()
	require := require.New(t)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	pubHex = hex.EncodeToString(
		elliptic.MarshalCompressed(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y))
	return priv, pubHex, "did:ecdsa-pub:" + pubHex
}

// TestSignResponseToken bundles the provided claims into a test auth
// response token signed with the given ECDSA key. The claims may be any
// JSON value, including a malformed (non-object) payload.
func TestSignResponseToken(t *testing.T, priv *ecdsa.PrivateKey, claims interface{}) ResponseToken {
	t.Helper()
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)
	data, err := json.Marshal(claims)
	require.NoError(err)
	jws, err := sig.Sign(data)
	require.NoError(err)
	raw, err := jws.CompactSerialize()
	require.NoError(err)
	return ResponseToken(raw)
}

// TestSignProfileToken bundles a profile object into a wrapped profile
// token of the shape a profile URL serves.
func TestSignProfileToken(t *testing.T, priv *ecdsa.PrivateKey, profile map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)
	raw, err := jwt.Signed(sig).Claims(map[string]interface{}{
		"claim": profile,
	}).CompactSerialize()
	require.NoError(err)
	return raw
}

// testAssertEqualFunc gives a way to assert that two functions are equal, by
// comparing their pointers.
func testAssertEqualFunc(t *testing.T, wantFunc, gotFunc interface{}, format string, args ...interface{}) {
	t.Helper()
	want := fmt.Sprintf("%p", wantFunc)
	got := fmt.Sprintf("%p", gotFunc)
	require.Equalf(t, want, got, format, args...)
}
