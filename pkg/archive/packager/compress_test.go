package packager

import (
	"bytes"
	"testing"
)

func TestCompressionTagString(t *testing.T) {
	tests := []struct {
		tag  CompressionTag
		want string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZstd, "zstd"},
		{CompressionTag(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.want {
				t.Errorf("CompressionTag(%d).String() = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			tag, err := ParseCompressionTag(name)
			if err != nil {
				t.Fatalf("ParseCompressionTag(%q) failed: %v", name, err)
			}
			if tag.String() != name {
				t.Errorf("roundtrip: ParseCompressionTag(%q).String() = %q", name, tag.String())
			}
		})
	}

	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag(\"gzip\") should fail")
	}
}

func TestCompressDecompress(t *testing.T) {
	data := bytes.Repeat([]byte("archive payload "), 256)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, used, err := compress(data, tag)
			if err != nil {
				t.Fatalf("compress failed: %v", err)
			}
			if used != tag {
				t.Errorf("used tag %s, want %s", used, tag)
			}
			if tag != CompressionNone && len(compressed) >= len(data) {
				t.Errorf("compressed size %d not smaller than %d", len(compressed), len(data))
			}
			out, err := decompress(compressed, used, len(data))
			if err != nil {
				t.Fatalf("decompress failed: %v", err)
			}
			if !bytes.Equal(out, data) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestDecompress_SizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1024)
	compressed, used, err := compress(data, CompressionZstd)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if _, err := decompress(compressed, used, len(data)+1); err == nil {
		t.Error("decompress accepted wrong size")
	}
}
