package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier lets tests force a verification result and capture the
// endpoint the processor resolved.
type stubVerifier struct {
	mu        sync.Mutex
	valid     bool
	err       error
	endpoints []string
}

func (v *stubVerifier) Verify(ctx context.Context, token ResponseToken, endpoint string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endpoints = append(v.endpoints, endpoint)
	return v.valid, v.err
}

const testAppKeyHex = "a5c61c6ca7b3e7e55edee68566aeab22e4da26baa285c7bd10e8d2218aa3b229"

func TestClient_HandlePendingSignIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	priv, pubHex, did := TestGenerateIdentityKey(t)

	newPayload := func(version string) *Payload {
		return &Payload{
			Issuer:          did,
			ProtocolVersion: version,
			PublicKeys:      []string{pubHex},
			Username:        "alice.id",
			Email:           "alice@example.com",
		}
	}
	newClientWithTransit := func(t *testing.T, opt ...Option) (*Client, *MemoryStore, *TransitKeyPair) {
		t.Helper()
		store := &MemoryStore{}
		tk, err := GenerateTransitKey()
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, &SessionRecord{TransitKey: tk}))
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(t, err)
		c, err := NewClient(cfg, store, &TestEnvironment{Query: map[string]string{}}, opt...)
		require.NoError(t, err)
		return c, store, tk
	}

	t.Run("old-version-passes-secrets-through", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		// no transit key in the store at all
		store := &MemoryStore{}
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, store, nil)
		require.NoError(err)

		p := newPayload("1.1.0")
		p.PrivateKey = testAppKeyHex
		p.CoreSessionToken = "raw-core-token"
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)
		assert.Equal(testAppKeyHex, ud.AppPrivateKey)
		assert.Equal("raw-core-token", ud.CoreSessionToken)
		assert.Equal(did, ud.DecentralizedID)
		assert.Equal("alice.id", ud.Username)
	})
	t.Run("new-version-decrypts-secrets", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, store, tk := newClientWithTransit(t)

		sealedKey, err := SealToPublicKey(tk.Public, testAppKeyHex)
		require.NoError(err)
		sealedCore, err := SealToPublicKey(tk.Public, "core-session-plaintext")
		require.NoError(err)

		p := newPayload("1.2.0")
		p.PrivateKey = sealedKey
		p.CoreSessionToken = sealedCore
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)
		assert.Equal(testAppKeyHex, ud.AppPrivateKey)
		assert.Equal("core-session-plaintext", ud.CoreSessionToken)

		// committed exactly as returned
		record, err := store.Get(ctx)
		require.NoError(err)
		require.NotNil(record.UserData)
		assert.Equal(ud, record.UserData)
	})
	t.Run("raw-private-key-falls-back-without-aborting", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, _ := newClientWithTransit(t)

		p := newPayload("1.2.0")
		p.PrivateKey = testAppKeyHex // not sealed, but well formed
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)
		assert.Equal(testAppKeyHex, ud.AppPrivateKey)
	})
	t.Run("undecryptable-malformed-private-key-is-hard-failure", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, store, _ := newClientWithTransit(t)

		p := newPayload("1.2.0")
		p.PrivateKey = "not hex, not sealed"
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.Error(err)
		assert.ErrorIs(err, ErrSecretDecryptionFailed)
		assert.Contains(err.Error(), "transit key may have changed")

		record, err := store.Get(ctx)
		require.NoError(err)
		assert.Nil(record.UserData)
	})
	t.Run("core-session-token-failure-degrades-silently", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, tk := newClientWithTransit(t)

		sealedKey, err := SealToPublicKey(tk.Public, testAppKeyHex)
		require.NoError(err)
		p := newPayload("1.2.0")
		p.PrivateKey = sealedKey
		p.CoreSessionToken = "not-actually-sealed"
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)
		assert.Equal("not-actually-sealed", ud.CoreSessionToken)
	})
	t.Run("missing-transit-key-is-hard-failure", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		store := &MemoryStore{}
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, store, nil)
		require.NoError(err)

		p := newPayload("1.2.0")
		p.PrivateKey = testAppKeyHex
		_, err = c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.Error(err)
		assert.ErrorIs(err, ErrMissingTransitKey)

		record, err := store.Get(ctx)
		require.NoError(err)
		assert.Nil(record)
	})
	t.Run("second-completion-is-rejected-and-record-unchanged", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, store, _ := newClientWithTransit(t)

		token := TestSignResponseToken(t, priv, newPayload("1.1.0"))
		first, err := c.HandlePendingSignIn(ctx, WithAuthResponse(token))
		require.NoError(err)

		_, err = c.HandlePendingSignIn(ctx, WithAuthResponse(token))
		require.Error(err)
		assert.ErrorIs(err, ErrAlreadySignedIn)

		record, err := store.Get(ctx)
		require.NoError(err)
		assert.Equal(first, record.UserData)
	})
	t.Run("hub-url-boundary-is-strictly-later", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		for version, wantHub := range map[string]string{
			"1.2.0": DefaultGaiaHubURL,
			"1.2.1": "https://hub.example.com",
		} {
			c, _, _ := newClientWithTransit(t)
			p := newPayload(version)
			p.HubURL = "https://hub.example.com"
			ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
			require.NoError(err)
			assert.Equalf(wantHub, ud.HubURL, "version %s", version)
		}
	})
	t.Run("association-token-boundary-is-strictly-later", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		for version, want := range map[string]string{
			"1.3.0": "",
			"1.3.1": "assoc.token.x",
		} {
			c, _, _ := newClientWithTransit(t)
			p := newPayload(version)
			p.AssociationToken = "assoc.token.x"
			ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
			require.NoError(err)
			assert.Equalf(want, ud.GaiaAssociationToken, "version %s", version)
		}
	})
	t.Run("api-endpoint-override-is-flow-local", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		verifier := &stubVerifier{valid: true}
		c, _, _ := newClientWithTransit(t, WithTokenVerifier(verifier))

		p := newPayload("1.3.1")
		p.CoreAPIEndpoint = "https://core-override.example.com"
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)

		// verification targeted the override, the result records it, and
		// the client's own config is untouched
		assert.Equal([]string{"https://core-override.example.com"}, verifier.endpoints)
		assert.Equal("https://core-override.example.com", ud.CoreAPIEndpoint)
		assert.Equal(DefaultCoreAPIEndpoint, c.config.CoreAPIEndpoint)
	})
	t.Run("override-ignored-at-threshold-version", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		verifier := &stubVerifier{valid: true}
		c, _, _ := newClientWithTransit(t, WithTokenVerifier(verifier))

		p := newPayload("1.3.0")
		p.CoreAPIEndpoint = "https://core-override.example.com"
		ud, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, p)))
		require.NoError(err)
		assert.Equal([]string{DefaultCoreAPIEndpoint}, verifier.endpoints)
		assert.Equal(DefaultCoreAPIEndpoint, ud.CoreAPIEndpoint)
	})
	t.Run("failed-verification-is-invalid-response", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, _ := newClientWithTransit(t, WithTokenVerifier(&stubVerifier{valid: false}))
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, newPayload("1.1.0"))))
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidResponse)
	})
	t.Run("verifier-failure-propagates", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		boom := errors.New("verification endpoint unreachable")
		c, _, _ := newClientWithTransit(t, WithTokenVerifier(&stubVerifier{err: boom}))
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, newPayload("1.1.0"))))
		require.Error(err)
		assert.ErrorIs(err, boom)
	})
	t.Run("forged-response-fails-default-verifier", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		forger, forgerPubHex, _ := TestGenerateIdentityKey(t)
		c, _, _ := newClientWithTransit(t)

		// forger claims alice's DID but can only name their own key
		p := newPayload("1.1.0")
		p.PublicKeys = []string{forgerPubHex}
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, forger, p)))
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidResponse)
	})
	t.Run("bare-string-payload-is-hard-failure", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, _ := newClientWithTransit(t)
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, "i am not a record")))
		require.Error(err)
		assert.ErrorIs(err, ErrMalformedTokenPayload)
	})
	t.Run("token-read-from-ambient-query", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		store := &MemoryStore{}
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		token := TestSignResponseToken(t, priv, newPayload("1.1.0"))
		env := &TestEnvironment{Query: map[string]string{authResponseParam: string(token)}}
		c, err := NewClient(cfg, store, env)
		require.NoError(err)

		ud, err := c.HandlePendingSignIn(ctx)
		require.NoError(err)
		assert.Equal("alice.id", ud.Username)
	})
	t.Run("no-token-anywhere", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, _ := newClientWithTransit(t)
		_, err := c.HandlePendingSignIn(ctx)
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("nil-environment-and-no-token-option", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, &MemoryStore{}, nil)
		require.NoError(err)
		_, err = c.HandlePendingSignIn(ctx)
		require.Error(err)
		assert.ErrorIs(err, ErrEnvironmentUnavailable)
	})
	t.Run("echo-reply-times-out-when-no-navigation-preempts", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		env := &TestEnvironment{Query: map[string]string{
			echoReplyParam:        "echo-1",
			authContinuationParam: "https://app.example.com/continue",
		}}
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, &MemoryStore{}, env)
		require.NoError(err)

		start := time.Now()
		_, err = c.HandlePendingSignIn(ctx, WithEchoGrace(10*time.Millisecond))
		require.Error(err)
		assert.ErrorIs(err, ErrEchoPendingTimeout)
		assert.GreaterOrEqual(time.Since(start), 10*time.Millisecond)
	})
	t.Run("sign-out-round-trip", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _, _ := newClientWithTransit(t)
		_, err := c.HandlePendingSignIn(ctx, WithAuthResponse(TestSignResponseToken(t, priv, newPayload("1.1.0"))))
		require.NoError(err)

		require.NoError(c.SignUserOut(ctx))
		signedIn, err := c.IsUserSignedIn(ctx)
		require.NoError(err)
		assert.False(signedIn)
		assert.False(c.IsSignInPending(ctx))
	})
	t.Run("transit-key-option-overrides-stored-key", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		store := &MemoryStore{}
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, store, nil)
		require.NoError(err)

		tk, err := GenerateTransitKey()
		require.NoError(err)
		sealedKey, err := SealToPublicKey(tk.Public, testAppKeyHex)
		require.NoError(err)
		p := newPayload("1.2.0")
		p.PrivateKey = sealedKey
		ud, err := c.HandlePendingSignIn(ctx,
			WithAuthResponse(TestSignResponseToken(t, priv, p)),
			WithTransitKey(tk),
		)
		require.NoError(err)
		assert.Equal(testAppKeyHex, ud.AppPrivateKey)
	})
}

func TestSecretOutcome_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("passthrough", SecretPassthrough.String())
	assert.Equal("decrypted", SecretDecrypted.String())
	assert.Equal("raw-fallback", SecretRawFallback.String())
	assert.Equal("failed", SecretFailed.String())
	assert.Equal("unknown", SecretOutcome(42).String())
	assert.True(strings.HasPrefix(SecretRawFallback.String(), "raw"))
}
