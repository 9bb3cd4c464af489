package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	return s, path
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSetGetRoundTrip(t *testing.T) {
	s, path := tempStore(t)

	require.NoError(t, s.SetAll(map[string]string{
		KeyToken:     "tok",
		KeyStudentID: "21BD1A0501",
	}))
	assert.Equal(t, "tok", s.Get(KeyToken))

	// Survives a reload from disk.
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "21BD1A0501", reloaded.Get(KeyStudentID))
}

func TestClearRemovesEverything(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, s.Set(KeyToken, "tok"))

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Get(KeyToken))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-clear store is fine.
	require.NoError(t, s.Clear())
}

func TestCorruptFileStartsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Empty(t, s.Get(KeyToken))
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	live := signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	assert.False(t, TokenExpired(live, now))

	dead := signToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})
	assert.True(t, TokenExpired(dead, now))

	noExp := signToken(t, jwt.MapClaims{"sub": "x"})
	assert.False(t, TokenExpired(noExp, now))

	assert.True(t, TokenExpired("garbage", now))
}

func TestSignedIn(t *testing.T) {
	s, _ := tempStore(t)
	assert.False(t, SignedIn(s))

	require.NoError(t, s.Set(KeyToken, signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})))
	assert.True(t, SignedIn(s))

	require.NoError(t, s.Set(KeyToken, signToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})))
	assert.False(t, SignedIn(s))
}
