package packager

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"archival-hq/keeper/pkg/archive"
)

// EncryptionTag identifies the cipher applied to a payload body.
type EncryptionTag uint8

const (
	EncryptionNone      EncryptionTag = 0
	EncryptionXChaCha20 EncryptionTag = 1
	EncryptionAge       EncryptionTag = 2
)

// String returns the configuration name of the tag.
func (tag EncryptionTag) String() string {
	switch tag {
	case EncryptionNone:
		return "none"
	case EncryptionXChaCha20:
		return SchemeXChaCha20
	case EncryptionAge:
		return SchemeAge
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// Scheme names as they appear in configuration and archive metadata.
const (
	SchemeXChaCha20 = "xchacha20poly1305"
	SchemeAge       = "age"
)

// KeySize is the size of the XChaCha20-Poly1305 master key.
const KeySize = 32

var (
	hkdfInfoEncryption = []byte("keeper.archive.enc.v1")
	hkdfInfoNonce      = []byte("keeper.archive.nonce.v1")
)

// Cipher seals and opens payload bodies. aad binds the ciphertext to the
// payload header and archive id.
type Cipher interface {
	Tag() EncryptionTag
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

// XChaCha20Cipher encrypts with XChaCha20-Poly1305 under a key derived from
// a 32-byte master key. The nonce is a keyed BLAKE3 hash of the additional
// data and plaintext, so packaging the same input twice yields the same
// ciphertext and a nonce is never reused for different plaintexts.
type XChaCha20Cipher struct {
	encKey   []byte
	nonceKey []byte
}

// NewXChaCha20Cipher derives the encryption and nonce keys from masterKey.
func NewXChaCha20Cipher(masterKey []byte) (*XChaCha20Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("archive encryption key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	encKey, err := deriveKey(masterKey, hkdfInfoEncryption)
	if err != nil {
		return nil, err
	}
	nonceKey, err := deriveKey(masterKey, hkdfInfoNonce)
	if err != nil {
		return nil, err
	}
	return &XChaCha20Cipher{encKey: encKey, nonceKey: nonceKey}, nil
}

// Tag implements Cipher.
func (c *XChaCha20Cipher) Tag() EncryptionTag { return EncryptionXChaCha20 }

// Seal implements Cipher. The output is nonce || ciphertext || tag.
func (c *XChaCha20Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	hasher, err := blake3.NewKeyed(c.nonceKey)
	if err != nil {
		return nil, fmt.Errorf("creating nonce hasher: %w", err)
	}
	hasher.Write(aad)
	hasher.Write(plaintext)
	nonce := hasher.Sum(nil)[:chacha20poly1305.NonceSizeX]

	output := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	copy(output, nonce)
	return aead.Seal(output, nonce, plaintext, aad), nil
}

// Open implements Cipher.
func (c *XChaCha20Cipher) Open(ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", archive.ErrDecryption, len(ciphertext))
	}
	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSizeX:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered payload", archive.ErrDecryption)
	}
	return plaintext, nil
}

func deriveKey(masterKey, info []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return derived, nil
}

// AgeCipher encrypts to one or more age X25519 recipients. age has no
// additional data, so the SHA-256 of aad is sealed in front of the
// plaintext and checked on open. Age output is randomized.
type AgeCipher struct {
	recipients []age.Recipient
	identity   age.Identity
}

// NewAgeCipher parses recipient public keys and an optional identity. An
// AgeCipher without identity can seal but not open.
func NewAgeCipher(recipientKeys []string, identityKey string) (*AgeCipher, error) {
	c := &AgeCipher{}
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		c.recipients = append(c.recipients, recipient)
	}
	if identityKey != "" {
		identity, err := age.ParseX25519Identity(identityKey)
		if err != nil {
			return nil, fmt.Errorf("parsing age identity: %w", err)
		}
		c.identity = identity
	}
	return c, nil
}

// Tag implements Cipher.
func (c *AgeCipher) Tag() EncryptionTag { return EncryptionAge }

// Seal implements Cipher.
func (c *AgeCipher) Seal(plaintext, aad []byte) ([]byte, error) {
	if len(c.recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one age recipient is required", archive.ErrEncryption)
	}
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, c.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	binding := sha256.Sum256(aad)
	if _, err := writer.Write(binding[:]); err != nil {
		return nil, fmt.Errorf("writing to age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open implements Cipher.
func (c *AgeCipher) Open(ciphertext, aad []byte) ([]byte, error) {
	if c.identity == nil {
		return nil, fmt.Errorf("%w: no age identity configured", archive.ErrDecryption)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), c.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrDecryption, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrDecryption, err)
	}
	binding := sha256.Sum256(aad)
	if len(plaintext) < len(binding) || subtle.ConstantTimeCompare(plaintext[:len(binding)], binding[:]) != 1 {
		return nil, fmt.Errorf("%w: payload is bound to a different archive", archive.ErrDecryption)
	}
	return plaintext[len(binding):], nil
}
