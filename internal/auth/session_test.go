// internal/auth/session_test.go
package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpire(t *testing.T) {
	for _, s := range []string{"", "0", "never"} {
		d, err := ParseExpire(s)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	d, err := ParseExpire("72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	_, err = ParseExpire("three days")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	k, err := GenerateKeys(0)
	require.NoError(t, err)

	tok, err := k.CreateJWT("player-1")
	require.NoError(t, err)
	sub, err := k.AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "player-1", sub)

	other, err := GenerateKeys(0)
	require.NoError(t, err)
	_, err = other.AuthenticateJWT(tok)
	assert.Error(t, err, "signed by another key")
}

func TestExpiredToken(t *testing.T) {
	k, err := GenerateKeys(time.Hour)
	require.NoError(t, err)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return issued }
	tok, err := k.CreateJWT("player-1")
	require.NoError(t, err)

	k.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = k.AuthenticateJWT(tok)
	require.NoError(t, err)

	k.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = k.AuthenticateJWT(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRejectsOtherAlgorithms(t *testing.T) {
	k, err := GenerateKeys(0)
	require.NoError(t, err)
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = k.AuthenticateJWT(hs)
	assert.Error(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{}).SignedString(k.private)
	require.NoError(t, err)
	_, err = k.AuthenticateJWT(noSub)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestLoadKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath, pubPath := filepath.Join(dir, "jwt"), filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	k, err := LoadKeys(privPath, pubPath, 0)
	require.NoError(t, err)
	tok, err := k.CreateJWT("p")
	require.NoError(t, err)
	sub, err := k.AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "p", sub)

	_, err = LoadKeys(filepath.Join(dir, "missing"), pubPath, 0)
	assert.Error(t, err)
	require.NoError(t, os.WriteFile(pubPath, []byte("short"), 0o644))
	_, err = LoadKeys(privPath, pubPath, 0)
	assert.Error(t, err)
}
