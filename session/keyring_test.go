package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	s, err := NewKeyringStore("oauth-session-test", "https://app.x/callback")
	require.NoError(t, err)

	got, err := s.Get(AccessTokenKey)
	require.NoError(t, err)
	assert.Empty(t, got, "missing entry reads as empty")

	require.NoError(t, s.Set(AccessTokenKey, "tok"))
	got, err = s.Get(AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	raw, err := keyring.Get("oauth-session-test", "https://app.x "+AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "tok", raw)

	require.NoError(t, s.Delete(AccessTokenKey))
	require.NoError(t, s.Delete(AccessTokenKey), "deleting twice is fine")
	got, err = s.Get(AccessTokenKey)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyringStore_ScopedByOrigin(t *testing.T) {
	keyring.MockInit()

	a, err := NewKeyringStore("oauth-session-test", "https://a.x")
	require.NoError(t, err)
	b, err := NewKeyringStore("oauth-session-test", "https://b.x")
	require.NoError(t, err)

	require.NoError(t, a.Set(StateKey, "aaaaa"))
	got, err := b.Get(StateKey)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewKeyringStore_Validation(t *testing.T) {
	_, err := NewKeyringStore("", "https://app.x")
	require.Error(t, err)

	_, err = NewKeyringStore("svc", "not a url")
	require.Error(t, err)
}

func TestManager_WithKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore("oauth-session-test", "https://app.x")
	require.NoError(t, err)
	nav := &fakeNavigator{current: "https://app.x/app"}
	m, err := New(testConfig(), store, nav)
	require.NoError(t, err)

	require.NoError(t, m.Login())
	assert.Equal(t, PendingCallback, m.State())
	require.NoError(t, m.Cancel())
	assert.Equal(t, Anonymous, m.State())
}
