package packager

import (
	"encoding/binary"
	"fmt"

	"archival-hq/keeper/pkg/archive"
)

const (
	// Magic identifies a Keeper archive payload.
	Magic = "KARC"

	// FormatVersion is the payload layout version written by this package.
	FormatVersion byte = 1

	// HeaderSize is the fixed size of the payload header:
	// magic(4) | version(1) | compression(1) | encryption(1) | uncompressed length(8, big endian).
	HeaderSize = 15
)

// Header is the fixed-size prefix of every archive payload. It is stored
// in the clear and authenticated as additional data when the body is
// encrypted.
type Header struct {
	Version          byte
	Compression      CompressionTag
	Encryption       EncryptionTag
	UncompressedSize uint64
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() []byte {
	out := make([]byte, HeaderSize)
	copy(out, Magic)
	out[4] = h.Version
	out[5] = byte(h.Compression)
	out[6] = byte(h.Encryption)
	binary.BigEndian.PutUint64(out[7:], h.UncompressedSize)
	return out
}

// ParseHeader decodes the header at the start of data and returns it with
// the remaining body.
func ParseHeader(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: payload is %d bytes, header needs %d", archive.ErrCorruptPayload, len(data), HeaderSize)
	}
	if string(data[:4]) != Magic {
		return Header{}, nil, fmt.Errorf("%w: bad magic %q", archive.ErrCorruptPayload, data[:4])
	}
	h := Header{
		Version:          data[4],
		Compression:      CompressionTag(data[5]),
		Encryption:       EncryptionTag(data[6]),
		UncompressedSize: binary.BigEndian.Uint64(data[7:HeaderSize]),
	}
	if h.Version != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: unsupported format version %d", archive.ErrCorruptPayload, h.Version)
	}
	return h, data[HeaderSize:], nil
}
