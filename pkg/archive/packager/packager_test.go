package packager

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"filippo.io/age"

	"archival-hq/keeper/pkg/archive"
)

func sampleRecords(n int) []*archive.Record {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]*archive.Record, n)
	for i := range records {
		records[i] = &archive.Record{
			ID:         "S-" + strings.Repeat("0", 3) + string(rune('a'+i%26)),
			EntityType: "samples",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
			SizeBytes:  int64(100 + i),
			Attributes: map[string]string{"lab": "north", "batch": "b1"},
			Data:       bytes.Repeat([]byte("chain of custody entry "), 8),
		}
	}
	return records
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	return key
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	key := testKey(t)
	xchacha, err := NewXChaCha20Cipher(key)
	if err != nil {
		t.Fatalf("NewXChaCha20Cipher failed: %v", err)
	}

	tests := []struct {
		name        string
		opts        Options
		wantEncrypt bool
	}{
		{"zstd", Options{Compression: CompressionZstd}, false},
		{"lz4", Options{Compression: CompressionLZ4}, false},
		{"none", Options{Compression: CompressionNone}, false},
		{"zstd encrypted", Options{Compression: CompressionZstd, Cipher: xchacha}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.opts)
			records := sampleRecords(20)

			pkg, err := p.Pack(PackRequest{ArchiveID: "a-1", EntityType: "samples", Records: records})
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			if pkg.RecordCount != 20 {
				t.Errorf("RecordCount = %d, want 20", pkg.RecordCount)
			}
			if pkg.Encrypted != tt.wantEncrypt {
				t.Errorf("Encrypted = %v, want %v", pkg.Encrypted, tt.wantEncrypt)
			}
			if pkg.Checksum != Checksum(pkg.Data) {
				t.Error("checksum does not match payload")
			}
			if pkg.SizeBytes != int64(len(pkg.Data)) {
				t.Errorf("SizeBytes = %d, want %d", pkg.SizeBytes, len(pkg.Data))
			}

			contents, err := p.Unpack("a-1", pkg.Data)
			if err != nil {
				t.Fatalf("Unpack failed: %v", err)
			}
			if contents.EntityType != "samples" {
				t.Errorf("EntityType = %q, want samples", contents.EntityType)
			}
			if len(contents.Records) != len(records) {
				t.Fatalf("got %d records, want %d", len(contents.Records), len(records))
			}
			for i, got := range contents.Records {
				want := records[i]
				if got.ID != want.ID || !got.CreatedAt.Equal(want.CreatedAt) || got.SizeBytes != want.SizeBytes {
					t.Errorf("record %d = %+v, want %+v", i, got, want)
				}
				if !bytes.Equal(got.Data, want.Data) || got.Attributes["lab"] != "north" {
					t.Errorf("record %d content mismatch", i)
				}
			}
		})
	}
}

func TestPack_Deterministic(t *testing.T) {
	xchacha, err := NewXChaCha20Cipher(testKey(t))
	if err != nil {
		t.Fatalf("NewXChaCha20Cipher failed: %v", err)
	}
	p := New(Options{Compression: CompressionZstd, Cipher: xchacha})
	req := PackRequest{ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(5)}

	first, err := p.Pack(req)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	second, err := p.Pack(req)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if first.Checksum != second.Checksum {
		t.Errorf("checksums differ: %s != %s", first.Checksum, second.Checksum)
	}

	// Same records under another archive id must not share ciphertext.
	req.ArchiveID = "a-2"
	other, err := p.Pack(req)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if other.Checksum == first.Checksum {
		t.Error("different archive ids produced identical payloads")
	}
}

func TestPack_EmptyRecordSet(t *testing.T) {
	_, err := New(Options{}).Pack(PackRequest{ArchiveID: "a-1", EntityType: "samples"})
	if !errors.Is(err, archive.ErrEmptyRecordSet) {
		t.Errorf("Pack() error = %v, want ErrEmptyRecordSet", err)
	}
}

func TestPack_IncompressibleFallsBack(t *testing.T) {
	noise := make([]byte, 4096)
	if _, err := rand.Read(noise); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	records := []*archive.Record{{ID: "r1", EntityType: "blobs", CreatedAt: time.Unix(0, 0).UTC(), Data: noise}}

	p := New(Options{Compression: CompressionLZ4})
	pkg, err := p.Pack(PackRequest{ArchiveID: "a-1", EntityType: "blobs", Records: records})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if pkg.Compression != "none" {
		t.Errorf("Compression = %q, want none", pkg.Compression)
	}
	if _, err := p.Unpack("a-1", pkg.Data); err != nil {
		t.Errorf("Unpack failed: %v", err)
	}
}

func TestUnpack_Failures(t *testing.T) {
	xchacha, err := NewXChaCha20Cipher(testKey(t))
	if err != nil {
		t.Fatalf("NewXChaCha20Cipher failed: %v", err)
	}
	wrong, err := NewXChaCha20Cipher(testKey(t))
	if err != nil {
		t.Fatalf("NewXChaCha20Cipher failed: %v", err)
	}

	sealer := New(Options{Compression: CompressionZstd, Cipher: xchacha})
	pkg, err := sealer.Pack(PackRequest{ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(3)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	plainPkg, err := New(Options{Compression: CompressionZstd}).Pack(PackRequest{ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(3)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	tampered := append([]byte(nil), pkg.Data...)
	tampered[len(tampered)-1] ^= 0xff
	tamperedPlain := append([]byte(nil), plainPkg.Data...)
	tamperedPlain[HeaderSize+2] ^= 0xff

	tests := []struct {
		name      string
		packager  *Packager
		archiveID string
		data      []byte
		want      error
	}{
		{"wrong key", New(Options{Cipher: wrong}), "a-1", pkg.Data, archive.ErrDecryption},
		{"missing key", New(Options{}), "a-1", pkg.Data, archive.ErrDecryption},
		{"other archive id", sealer, "a-2", pkg.Data, archive.ErrDecryption},
		{"tampered ciphertext", sealer, "a-1", tampered, archive.ErrDecryption},
		{"tampered plain body", sealer, "a-1", tamperedPlain, archive.ErrCorruptPayload},
		{"truncated", sealer, "a-1", pkg.Data[:10], archive.ErrCorruptPayload},
		{"bad magic", sealer, "a-1", append([]byte("XXXX"), pkg.Data[4:]...), archive.ErrCorruptPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.packager.Unpack(tt.archiveID, tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Unpack() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAgeCipher(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity failed: %v", err)
	}
	sealer, err := NewAgeCipher([]string{identity.Recipient().String()}, "")
	if err != nil {
		t.Fatalf("NewAgeCipher failed: %v", err)
	}
	opener, err := NewAgeCipher(nil, identity.String())
	if err != nil {
		t.Fatalf("NewAgeCipher failed: %v", err)
	}

	pkg, err := New(Options{Compression: CompressionZstd, Cipher: sealer}).Pack(PackRequest{
		ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(4),
	})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if pkg.EncryptionScheme != SchemeAge {
		t.Errorf("EncryptionScheme = %q, want %q", pkg.EncryptionScheme, SchemeAge)
	}

	reader := New(Options{Decrypters: []Cipher{opener}})
	contents, err := reader.Unpack("a-1", pkg.Data)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(contents.Records) != 4 {
		t.Errorf("got %d records, want 4", len(contents.Records))
	}

	if _, err := reader.Unpack("a-other", pkg.Data); !errors.Is(err, archive.ErrDecryption) {
		t.Errorf("Unpack() under other id error = %v, want ErrDecryption", err)
	}
	if _, err := New(Options{Cipher: sealer}).Unpack("a-1", pkg.Data); !errors.Is(err, archive.ErrDecryption) {
		t.Errorf("Unpack() without identity error = %v, want ErrDecryption", err)
	}
}

func TestSigner(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	signer, err := NewSigner("k1", priv)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	pkg, err := New(Options{Compression: CompressionZstd, Signer: signer}).Pack(PackRequest{
		ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(2),
	})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if pkg.SigningKeyID != "k1" {
		t.Errorf("SigningKeyID = %q, want k1", pkg.SigningKeyID)
	}
	if !VerifySignature(pub, pkg.Checksum, pkg.Signature) {
		t.Error("signature did not verify")
	}
	if VerifySignature(pub, Checksum([]byte("other")), pkg.Signature) {
		t.Error("signature verified for a different checksum")
	}

	if _, err := NewSigner("", priv); err == nil {
		t.Error("NewSigner accepted empty key id")
	}
}

func TestInspect(t *testing.T) {
	pkg, err := New(Options{Compression: CompressionLZ4}).Pack(PackRequest{
		ArchiveID: "a-1", EntityType: "samples", Records: sampleRecords(10),
	})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	h, err := Inspect(pkg.Data)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if h.Version != FormatVersion || h.Encryption != EncryptionNone {
		t.Errorf("unexpected header %+v", h)
	}
	if int64(h.UncompressedSize) != pkg.UncompressedBytes {
		t.Errorf("UncompressedSize = %d, want %d", h.UncompressedSize, pkg.UncompressedBytes)
	}
}
