package packager

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// Signer signs archive checksums with an ed25519 key.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
}

// NewSigner returns a signer for the given key.
func NewSigner(keyID string, key ed25519.PrivateKey) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("signing key id is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// KeyID returns the identifier recorded alongside signatures.
func (s *Signer) KeyID() string { return s.keyID }

// Sign returns the base64 signature over checksum.
func (s *Signer) Sign(checksum string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(checksum)))
}

// VerifySignature checks a base64 signature produced by Signer.Sign.
func VerifySignature(pub ed25519.PublicKey, checksum, signature string) bool {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, []byte(checksum), raw)
}
