// Package keys manages the ed25519 keypairs used to sign archives.
//
// Keys are stored as PEM files named after their key id:
// "<key_id>_public.pem" (mode 0644) and "<key_id>_private.pem" (mode 0600).
// Block bodies are the raw ed25519 key bytes.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"archival-hq/keeper/pkg/archive/packager"
)

const (
	publicBlockType  = "PUBLIC KEY"
	privateBlockType = "PRIVATE KEY"
)

// ErrKeyNotFound is returned when no public key exists for a key id.
var ErrKeyNotFound = errors.New("signing key not found")

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Keypair describes the files written by GenerateKeypair.
type Keypair struct {
	KeyID          string
	PublicKeyPath  string
	PrivateKeyPath string
	PublicKey      ed25519.PublicKey
}

// PublicKeyPath returns the public key file for keyID in dir.
func PublicKeyPath(dir, keyID string) string {
	return filepath.Join(dir, keyID+"_public.pem")
}

// PrivateKeyPath returns the private key file for keyID in dir.
func PrivateKeyPath(dir, keyID string) string {
	return filepath.Join(dir, keyID+"_private.pem")
}

// ValidateKeyID rejects ids that are empty or unsafe as file name parts.
func ValidateKeyID(keyID string) error {
	if !keyIDPattern.MatchString(keyID) {
		return fmt.Errorf("invalid key id %q: use letters, digits, '.', '_' or '-'", keyID)
	}
	return nil
}

// GenerateKeypair creates a new ed25519 keypair in dir. Existing files are
// never overwritten.
func GenerateKeypair(dir, keyID string) (*Keypair, error) {
	if err := ValidateKeyID(keyID); err != nil {
		return nil, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	kp := &Keypair{
		KeyID:          keyID,
		PublicKeyPath:  PublicKeyPath(dir, keyID),
		PrivateKeyPath: PrivateKeyPath(dir, keyID),
		PublicKey:      pub,
	}

	if err := writePEM(kp.PrivateKeyPath, privateBlockType, priv, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save private key: %w", err)
	}
	if err := writePEM(kp.PublicKeyPath, publicBlockType, pub, 0o644); err != nil {
		_ = os.Remove(kp.PrivateKeyPath)
		return nil, fmt.Errorf("failed to save public key: %w", err)
	}

	return kp, nil
}

// LoadPrivateKey reads an ed25519 private key PEM file. Files readable by
// group or others are rejected.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat private key: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, info.Mode().Perm())
	}

	raw, err := readPEM(path, privateBlockType)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key in %s has %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKey reads an ed25519 public key PEM file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := readPEM(path, publicBlockType)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key in %s has %d bytes, want %d", path, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// LoadSigner loads the private key at path and returns a signer recording
// keyID.
func LoadSigner(keyID, path string) (*packager.Signer, error) {
	if err := ValidateKeyID(keyID); err != nil {
		return nil, err
	}
	priv, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return packager.NewSigner(keyID, priv)
}

// Keyring resolves public keys from a directory of "<key_id>_public.pem"
// files. Loaded keys are cached; keys added later are found on first use.
type Keyring struct {
	dir string

	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewKeyring creates a keyring over dir. The directory need not exist.
func NewKeyring(dir string) *Keyring {
	return &Keyring{dir: dir, keys: make(map[string]ed25519.PublicKey)}
}

// Add registers a key directly, e.g. the public half of the active signer.
func (k *Keyring) Add(keyID string, pub ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyID] = pub
}

// PublicKey returns the public key for keyID.
func (k *Keyring) PublicKey(keyID string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	pub, ok := k.keys[keyID]
	k.mu.RUnlock()
	if ok {
		return pub, nil
	}

	if err := ValidateKeyID(keyID); err != nil {
		return nil, err
	}
	if k.dir == "" {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}

	pub, err := LoadPublicKey(PublicKeyPath(k.dir, keyID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
		}
		return nil, err
	}

	k.Add(keyID, pub)
	return pub, nil
}

// ListKeyIDs returns the ids of the public keys in dir, sorted. A missing
// directory holds no keys.
func ListKeyIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := strings.CutSuffix(entry.Name(), "_public.pem")
		if ok && ValidateKeyID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func writePEM(path, blockType string, body []byte, mode os.FileMode) error {
	// #nosec G304 - path is built from the key directory and a validated key id.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: body}); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func readPEM(path, blockType string) ([]byte, error) {
	// #nosec G304 - key paths come from configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("%s holds a %q block, want %q", path, block.Type, blockType)
	}
	return block.Bytes, nil
}
