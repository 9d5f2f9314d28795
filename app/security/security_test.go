package security

import (
	"crypto/rsa"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func key(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = GenerateKey(DefaultKeyBits)
		require.NoError(t, err)
	})
	return testKey
}

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner(key(t))
	data := []byte("<atf version=\"1.0\"></atf>")

	sig, err := signer.Sign(data)
	require.NoError(t, err)
	assert.Len(t, sig, 512)

	assert.NoError(t, Verify(signer.PublicKey(), data, sig))

	err = Verify(signer.PublicKey(), []byte("tampered"), sig)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	err = Verify(signer.PublicKey(), data, "zz")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestGenerateKeyTooSmall(t *testing.T) {
	_, err := GenerateKey(1024)
	assert.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()

	privatePath, publicPath, err := WriteKeyPair(dir, DefaultKeyBits)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "private.pem"), privatePath)

	private, err := LoadPrivateKey(privatePath)
	require.NoError(t, err)
	public, err := LoadPublicKey(publicPath)
	require.NoError(t, err)
	assert.True(t, private.PublicKey.Equal(public))

	sig, err := NewSigner(private).Sign([]byte("feed"))
	require.NoError(t, err)
	assert.NoError(t, Verify(public, []byte("feed"), sig))

	_, err = LoadPrivateKey(publicPath)
	assert.Error(t, err)
	_, err = LoadPublicKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestTokenManager(t *testing.T) {
	manager := NewTokenManager(key(t), "atf-feed", "atf-api")

	token, err := manager.Issue("publisher", time.Now())
	require.NoError(t, err)

	claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "publisher", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManagerRejects(t *testing.T) {
	manager := NewTokenManager(key(t), "atf-feed", "atf-api")

	expired, err := manager.Issue("publisher", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = manager.Verify(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other, err := NewTokenManager(key(t), "atf-feed", "other-api").Issue("publisher", time.Now())
	require.NoError(t, err)
	_, err = manager.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "atf-feed",
		Audience:  jwt.ClaimStrings{"atf-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = manager.Verify(hmac)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
