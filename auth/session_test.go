package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("get-absent-returns-nil", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		s := &MemoryStore{}
		got, err := s.Get(ctx)
		require.NoError(err)
		assert.Nil(got)
	})
	t.Run("set-nil-record", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		s := &MemoryStore{}
		err := s.Set(ctx, nil)
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)
	})
	t.Run("mutating-result-does-not-change-store", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		s := &MemoryStore{}
		tk, err := GenerateTransitKey()
		require.NoError(err)
		require.NoError(s.Set(ctx, &SessionRecord{TransitKey: tk}))

		got, err := s.Get(ctx)
		require.NoError(err)
		got.UserData = &UserData{Username: "mallory.id"}
		got.TransitKey.Private[0] = 0xff

		again, err := s.Get(ctx)
		require.NoError(err)
		assert.Nil(again.UserData)
		assert.Equal(tk.Private, again.TransitKey.Private)
	})
	t.Run("delete-absent-is-noop", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		s := &MemoryStore{}
		require.NoError(s.Delete(ctx))
	})
	t.Run("delete-clears", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		s := &MemoryStore{}
		require.NoError(s.Set(ctx, &SessionRecord{UserData: &UserData{Username: "alice.id"}}))
		require.NoError(s.Delete(ctx))
		got, err := s.Get(ctx)
		require.NoError(err)
		assert.Nil(got)
	})
}

func TestClient_SignUserOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newSignedInClient := func(t *testing.T) (*Client, *TestEnvironment) {
		t.Helper()
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(t, err)
		store := &MemoryStore{}
		require.NoError(t, store.Set(ctx, &SessionRecord{UserData: &UserData{Username: "alice.id"}}))
		env := &TestEnvironment{Query: map[string]string{}}
		c, err := NewClient(cfg, store, env)
		require.NoError(t, err)
		return c, env
	}

	t.Run("clears-whole-record", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _ := newSignedInClient(t)
		require.NoError(c.SignUserOut(ctx))

		signedIn, err := c.IsUserSignedIn(ctx)
		require.NoError(err)
		assert.False(signedIn)
		record, err := c.store.Get(ctx)
		require.NoError(err)
		assert.Nil(record)
	})
	t.Run("optional-redirect", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, env := newSignedInClient(t)
		require.NoError(c.SignUserOut(ctx, WithRedirectTo("https://app.example.com/bye")))
		assert.Equal([]string{"https://app.example.com/bye"}, env.Navigations())
	})
	t.Run("sign-out-of-empty-session-succeeds", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		cfg, err := NewConfig("https://app.example.com")
		require.NoError(err)
		c, err := NewClient(cfg, &MemoryStore{}, &TestEnvironment{})
		require.NoError(err)
		require.NoError(c.SignUserOut(ctx))
	})
}

func TestClient_LoadUserData(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	cfg, err := NewConfig("https://app.example.com")
	require.NoError(err)
	store := &MemoryStore{}
	c, err := NewClient(cfg, store, nil)
	require.NoError(err)

	got, err := c.LoadUserData(ctx)
	require.NoError(err)
	assert.Nil(got)

	require.NoError(store.Set(ctx, &SessionRecord{UserData: &UserData{Username: "alice.id"}}))
	got, err = c.LoadUserData(ctx)
	require.NoError(err)
	require.NotNil(got)
	assert.Equal("alice.id", got.Username)
}
