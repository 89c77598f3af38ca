/*
Package auth hosts the authenticator capability and its implementations.

PURPOSE:
  An authenticator consumes the request headers and produces the opaque
  user token that partitions the keyspace. It runs before the request body
  is read; the router and the store treat it as a black box.

VARIANTS:
  Noop       fixed token, for unauthenticated deployments (all clients
             share one namespace)
  JWT        Authorization: Bearer <token>, RS256-signed, subject claim
             becomes the user token (jwt.go)
  Signature  per-request secp256k1 proof of possession; the public key
             becomes the user token (signature.go)

SEE ALSO:
  - api/handlers.go: invocation site, header map construction
*/
package auth

import "context"

// Authenticator verifies a request's headers and returns the user token
// identifying the authenticated principal. Header names are lowercased by
// the HTTP layer before the map is handed over.
type Authenticator interface {
	Verify(ctx context.Context, headers map[string]string) (string, error)
}

// unauthenticatedUser is the shared token handed out by Noop.
const unauthenticatedUser = "unauth-user"

// Noop lets every request through under a single fixed user token. Only
// suitable when the deployment restricts access by other means.
type Noop struct{}

// Verify implements Authenticator.
func (Noop) Verify(context.Context, map[string]string) (string, error) {
	return unauthenticatedUser, nil
}
