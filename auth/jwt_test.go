package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningdevkit/vss-server/vss"
)

func newRSAKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, pubPEM
}

func signToken(t *testing.T, key *rsa.PrivateKey, subject string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWTValidToken(t *testing.T) {
	key, pubPEM := newRSAKeyPair(t)
	authenticator, err := NewJWTAuthenticator(pubPEM)
	require.NoError(t, err)

	headers := map[string]string{"authorization": "Bearer " + signToken(t, key, "valid_user_id")}
	userToken, err := authenticator.Verify(context.Background(), headers)
	require.NoError(t, err)
	assert.Equal(t, "valid_user_id", userToken)
}

func TestJWTWrongIssuerKey(t *testing.T) {
	_, pubPEM := newRSAKeyPair(t)
	otherKey, _ := newRSAKeyPair(t)
	authenticator, err := NewJWTAuthenticator(pubPEM)
	require.NoError(t, err)

	headers := map[string]string{"authorization": "Bearer " + signToken(t, otherKey, "intruder")}
	_, err = authenticator.Verify(context.Background(), headers)
	assert.ErrorIs(t, err, vss.ErrAuth)
}

func TestJWTExpiredToken(t *testing.T) {
	key, pubPEM := newRSAKeyPair(t)
	authenticator, err := NewJWTAuthenticator(pubPEM)
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signed, err := expired.SignedString(key)
	require.NoError(t, err)

	_, err = authenticator.Verify(context.Background(), map[string]string{"authorization": "Bearer " + signed})
	assert.ErrorIs(t, err, vss.ErrAuth)
}

func TestJWTRejectsNonRS256(t *testing.T) {
	_, pubPEM := newRSAKeyPair(t)
	authenticator, err := NewJWTAuthenticator(pubPEM)
	require.NoError(t, err)

	hmacToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user"})
	signed, err := hmacToken.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = authenticator.Verify(context.Background(), map[string]string{"authorization": "Bearer " + signed})
	assert.ErrorIs(t, err, vss.ErrAuth)
}

func TestJWTMalformedHeaders(t *testing.T) {
	_, pubPEM := newRSAKeyPair(t)
	authenticator, err := NewJWTAuthenticator(pubPEM)
	require.NoError(t, err)

	cases := map[string]map[string]string{
		"missing header": {},
		"no bearer":      {"authorization": "Token abc"},
		"garbage token":  {"authorization": "Bearer not.a.jwt"},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := authenticator.Verify(context.Background(), headers)
			assert.ErrorIs(t, err, vss.ErrAuth)
		})
	}
}
