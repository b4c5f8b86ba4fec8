// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is the signing strategy behind [TokenService].
//
// Exactly one implementation is constructed at startup from configuration.
type Signer interface {
	// Method is the JWT algorithm this signer produces and accepts.
	Method() jwt.SigningMethod
	// SigningKey is handed to [jwt.Token.SignedString].
	SigningKey() interface{}
	// VerificationKey is returned from the parser's key function.
	VerificationKey() interface{}
	// KeyID is written to the "kid" header. Empty for symmetric mode.
	KeyID() string
}

// # Asymmetric Mode (RS256)

// RSASigner signs with an RSA private key and verifies with its public half.
type RSASigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
}

// NewRSASigner reads PEM encoded RSA keys from the provided filesystem paths.
func NewRSASigner(privateKeyPath, publicKeyPath string) (*RSASigner, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	return NewRSASignerFromPEM(privateKeyData, publicKeyData)
}

// NewRSASignerFromPEM builds an [RSASigner] from in-memory PEM blocks.
func NewRSASignerFromPEM(privatePEM, publicPEM []byte) (*RSASigner, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	if privateKey.PublicKey.N.Cmp(publicKey.N) != 0 {
		return nil, errors.New("sec: public key does not match private key")
	}

	return &RSASigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		keyID:      thumbprint(publicKey),
	}, nil
}

func (s *RSASigner) Method() jwt.SigningMethod    { return jwt.SigningMethodRS256 }
func (s *RSASigner) SigningKey() interface{}      { return s.privateKey }
func (s *RSASigner) VerificationKey() interface{} { return s.publicKey }
func (s *RSASigner) KeyID() string                { return s.keyID }

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	KeyType   string `json:"kty"`
	Use       string `json:"use"`
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid"`
	Modulus   string `json:"n"`
	Exponent  string `json:"e"`
}

// JWKSet is the document served at /.well-known/jwks.json.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS publishes the verification key so other processes can check tokens
// without holding a secret.
func (s *RSASigner) JWKS() JWKSet {
	return JWKSet{Keys: []JWK{{
		KeyType:   "RSA",
		Use:       "sig",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		KeyID:     s.keyID,
		Modulus:   base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes()),
		Exponent:  base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.publicKey.E)).Bytes()),
	}}}
}

// thumbprint derives a stable key id from the public modulus.
func thumbprint(key *rsa.PublicKey) string {
	sum := sha256.Sum256(key.N.Bytes())
	return hex.EncodeToString(sum[:8])
}

// # Symmetric Mode (HS256)

// minHMACSecretLength is the smallest accepted HS256 secret in bytes.
const minHMACSecretLength = 32

// HMACSigner signs and verifies with one shared secret.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner validates the secret length and returns an HS256 signer.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if len(secret) < minHMACSecretLength {
		return nil, fmt.Errorf("sec: hmac secret must be at least %d bytes", minHMACSecretLength)
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

func (s *HMACSigner) Method() jwt.SigningMethod    { return jwt.SigningMethodHS256 }
func (s *HMACSigner) SigningKey() interface{}      { return s.secret }
func (s *HMACSigner) VerificationKey() interface{} { return s.secret }
func (s *HMACSigner) KeyID() string                { return "" }
