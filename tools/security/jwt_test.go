package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-test-secret-test-secret")

func TestGenerateVerify(t *testing.T) {
	opts := DefaultOptions(secret)
	tok, exp, err := Generate(opts, "u-1", "Ada")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, 2*time.Second)

	c, err := Verify(opts, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.Subject)
	assert.Equal(t, "Ada", c.Name)
	assert.Equal(t, exp.Unix(), c.ExpiresAt.Unix())
}

func TestVerifyExpired(t *testing.T) {
	claims := jwtlib.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, _, err := Generate(DefaultOptions([]byte("other-secret")), "u-1", "")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRequiresSubject(t *testing.T) {
	claims := jwtlib.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions(secret), tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bEaReR   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}
