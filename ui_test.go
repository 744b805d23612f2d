package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStatus_Authorized(t *testing.T) {
	a, _, _ := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, a.manager.SetAccessToken(token))

	out := renderStatus(a.manager)
	assert.Contains(t, out, "authorized")
	assert.Contains(t, out, "client-1")
	assert.Contains(t, out, token[:20]+"...")
	assert.Contains(t, out, "user-42")
	assert.Contains(t, out, "Expires")
}

func TestRenderStatus_Pending(t *testing.T) {
	a, _, _ := newTestApp(t, testSessionConfig("https://auth.x"), "http://127.0.0.1:19010/app")
	require.NoError(t, a.manager.Login())

	assert.Contains(t, renderStatus(a.manager), "pending_callback")
}

func TestWaitModel(t *testing.T) {
	t.Run("result quits", func(t *testing.T) {
		m := newWaitModel("waiting", nil)
		next, cmd := m.Update(waitResultMsg{target: "/app"})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())

		wm := next.(*waitModel)
		require.NotNil(t, wm.result)
		assert.Equal(t, "/app", wm.result.target)
		assert.Empty(t, wm.View())
	})

	t.Run("q cancels", func(t *testing.T) {
		m := newWaitModel("waiting", nil)
		assert.Contains(t, m.View(), "waiting")

		next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		require.NotNil(t, cmd)
		assert.True(t, next.(*waitModel).cancelled)
	})
}
