/*
signature.go - Proof-of-possession authenticator

PURPOSE:
  Requires every request to carry a public key and proof of knowledge of
  the corresponding private key. Access is then granted to the user
  defined by that public key. No account registration exists: anyone with
  a key pair gets a namespace, so deployments must rate-limit new users at
  a fronting layer.

HEADER FORMAT:
  Authorization: <pubkey_hex 66><sig_hex 128><unix_seconds_decimal>

  The signature is a compact secp256k1 ECDSA signature over
  sha256(SigningConstant || pubkey_bytes || time_string). Proofs dated
  more than 24 hours from server time in either direction are rejected.
*/
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/lightningdevkit/vss-server/vss"
)

// SigningConstant is the 64-byte salt which, followed by the public key
// and the time string, is hashed and signed to prove private-key
// knowledge.
var SigningConstant = []byte("VSS Signature Authorizer Signing Salt Constant..................")

const (
	pubKeyHexLen    = 33 * 2
	signatureHexLen = 64 * 2
	// maxTimeSkew bounds how far the proof's timestamp may drift from
	// server time in either direction.
	maxTimeSkew = 24 * time.Hour
)

// SignatureAuthenticator validates per-request proof-of-possession
// headers. The hex-encoded public key doubles as the user token.
type SignatureAuthenticator struct{}

// Verify implements Authenticator.
func (SignatureAuthenticator) Verify(_ context.Context, headers map[string]string) (string, error) {
	header, ok := headers["authorization"]
	if !ok {
		return "", vss.NewAuth("Authorization header not found.")
	}
	if len(header) <= pubKeyHexLen+signatureHexLen {
		return "", vss.NewAuth("Authorization header has wrong length")
	}
	for i := 0; i < len(header); i++ {
		if header[i] >= 0x80 {
			return "", vss.NewAuth("Authorization header has bogus chars")
		}
	}

	pubKeyHex := header[:pubKeyHexLen]
	sigHex := header[pubKeyHexLen : pubKeyHexLen+signatureHexLen]
	timeStr := header[pubKeyHexLen+signatureHexLen:]

	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", vss.NewAuth("Authorization header is not hex")
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", vss.NewAuth("Authorization header is not hex")
	}
	signedAt, err := strconv.ParseInt(timeStr, 10, 64)
	if err != nil {
		return "", vss.NewAuth("Time is not an integer")
	}

	now := time.Now().Unix()
	skew := int64(maxTimeSkew / time.Second)
	if signedAt < now-skew || signedAt > now+skew {
		return "", vss.NewAuth("Time is too far from now")
	}

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return "", vss.NewAuth("Authorization header has bad pubkey")
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow {
		return "", vss.NewAuth("Authorization header has bad sig")
	}
	if overflow := s.SetByteSlice(sigBytes[32:]); overflow {
		return "", vss.NewAuth("Authorization header has bad sig")
	}
	sig := ecdsa.NewSignature(&r, &s)

	hash := sha256.New()
	hash.Write(SigningConstant)
	hash.Write(pubKeyBytes)
	hash.Write([]byte(timeStr))
	if !sig.Verify(hash.Sum(nil), pubKey) {
		return "", vss.NewAuth("Signature was invalid")
	}

	return pubKeyHex, nil
}
