// Package crypto implements the RSA-4096 keygen, signing, and PEM/JWK
// conversion primitives the vault core depends on. It owns no storage and no
// domain knowledge beyond "a kid names a key pair" — the keymanager package
// decides which kid is active for which domain.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

const (
	privateKeyBits  = 4096
	pemBlockPrivate = "PRIVATE KEY"
	pemBlockPublic  = "PUBLIC KEY"
)

// KeyPair is a freshly generated RSA key pair, PEM-encoded for storage.
type KeyPair struct {
	PrivatePEM []byte
	PublicPEM  []byte
}

// GenerateKeyPair creates a new RSA-4096 key pair and PKCS8/SPKI-encodes it.
// Callers mint the kid separately and hand it to ToJWK when publishing.
func GenerateKeyPair() (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, privateKeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}

	return KeyPair{
		PrivatePEM: pem.EncodeToMemory(&pem.Block{Type: pemBlockPrivate, Bytes: privBytes}),
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: pemBlockPublic, Bytes: pubBytes}),
	}, nil
}

// ParsePrivateKey decodes a PKCS8 PEM block produced by GenerateKeyPair (or
// by a store's on-disk layout) back into an *rsa.PrivateKey.
func ParsePrivateKey(kid vaultinternal.Kid, pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: "no PEM block found"}
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: err.Error()}
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: "key is not RSA"}
	}
	return rsaKey, nil
}

// ParsePublicKey decodes an SPKI PEM block into an *rsa.PublicKey.
func ParsePublicKey(kid vaultinternal.Kid, pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: "no PEM block found"}
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: err.Error()}
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: "key is not RSA"}
	}
	return rsaKey, nil
}

// Sign produces an RSASSA-PKCS1-v1_5/SHA-256 signature over payload.
func Sign(kid vaultinternal.Kid, key *rsa.PrivateKey, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, &vaultinternal.SigningFailedError{Kid: kid, Reason: err.Error()}
	}
	return sig, nil
}

// ToJWK converts a public key into its JSON-serialized JWK form, tagged with
// kid, "sig" usage, and RS256 — the form the JWKS store caches and the JWKS
// HTTP endpoint serves verbatim.
func ToJWK(kid vaultinternal.Kid, pub *rsa.PublicKey) ([]byte, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, &vaultinternal.CryptoImportError{Kid: kid, Reason: err.Error()}
	}
	if err := key.Set(jwk.KeyIDKey, string(kid)); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}

	return json.Marshal(key)
}

// BuildJWKSet wraps a collection of already-marshaled single JWKs into the
// {"keys": [...]} envelope the /jwks/:domain endpoint serves.
func BuildJWKSet(jwks [][]byte) ([]byte, error) {
	set := jwk.NewSet()
	for _, raw := range jwks {
		key, err := jwk.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse cached jwk: %w", err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("assemble jwk set: %w", err)
		}
	}
	return json.Marshal(set)
}

// HashSnapshot computes the stable SHA-256 hex digest of a canonicalized
// domain snapshot, used by the garbage collector to detect whether a
// domain's key-material state has changed since the last cycle.
func HashSnapshot(canonical any) (string, error) {
	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal canonical snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
