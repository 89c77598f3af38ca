package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lightningdevkit/vss-server/vss"
)

const bearerPrefix = "Bearer "

// JWTAuthenticator only admits requests carrying a JSON Web Token signed
// by the configured issuer key. The token's subject claim identifies the
// user.
type JWTAuthenticator struct {
	issuerKey *rsa.PublicKey
}

// NewJWTAuthenticator parses a PEM-encoded RSA public key and returns an
// authenticator verifying RS256 signatures under it.
func NewJWTAuthenticator(rsaPEM []byte) (*JWTAuthenticator, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(rsaPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}
	return &JWTAuthenticator{issuerKey: key}, nil
}

// Verify implements Authenticator.
func (a *JWTAuthenticator) Verify(_ context.Context, headers map[string]string) (string, error) {
	header, ok := headers["authorization"]
	if !ok {
		return "", vss.NewAuth("Authorization header not found.")
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", vss.NewAuth("Invalid token format.")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.issuerKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return "", vss.NewAuth("Authentication failure. %v", err)
	}
	if claims.Subject == "" {
		return "", vss.NewAuth("Authentication failure. Token has no subject claim.")
	}
	return claims.Subject, nil
}
