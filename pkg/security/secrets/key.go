package secrets

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the size of symmetric master keys.
const KeySize = 32

// DecodeKey decodes a 32-byte key given as hex (64 characters) or as
// standard, URL-safe or unpadded base64.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("key is empty")
	}

	if len(s) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
		}
		return key, nil
	}

	return nil, fmt.Errorf("key is neither %d-byte hex nor base64", KeySize)
}
