package binio

import (
	"bytes"
	"compress/zlib"
	"strings"
	"testing"
)

func TestReadWriteLE(t *testing.T) {
	b := make([]byte, 8)
	PutLE16(b, 0, 0xABCD)
	PutLE32(b, 2, 0xDEADBEEF)
	PutI32(b, 2, -1)

	if got := ReadLE16(b, 0); got != 0xABCD {
		t.Fatalf("ReadLE16 = %#x, want %#x", got, 0xABCD)
	}
	if got := ReadI32(b, 2); got != -1 {
		t.Fatalf("ReadI32 = %d, want -1", got)
	}
}

func TestNulString(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", make([]byte, 16), ""},
		{"full", []byte("sixteen_byte_nam"), "sixteen_byte_nam"},
		{"padded", append([]byte("pal001"), make([]byte, 10)...), "pal001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NulString(tt.in); got != tt.want {
				t.Errorf("NulString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPutNulString(t *testing.T) {
	b := make([]byte, 8)
	PutNulString(b, "abc")
	if got := NulString(b); got != "abc" {
		t.Fatalf("round trip = %q, want %q", got, "abc")
	}
	// Overwriting with a shorter name must clear old trailing bytes.
	PutNulString(b, "x")
	if got := NulString(b); got != "x" {
		t.Fatalf("round trip after shrink = %q, want %q", got, "x")
	}
}

func TestInflateDeflateRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 20)

	packed, ok := Deflate(src, 6)
	if !ok {
		t.Fatal("Deflate reported no benefit for a highly repetitive buffer")
	}
	if len(packed) >= len(src) {
		t.Fatalf("packed size %d not smaller than raw %d", len(packed), len(src))
	}

	got, err := Inflate(bytes.NewReader(packed))
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped bytes differ from source")
	}
}

func TestDeflateRejectsIncompressible(t *testing.T) {
	// Tiny input: zlib framing overhead guarantees no benefit.
	if _, ok := Deflate([]byte{1, 2, 3}, 6); ok {
		t.Fatal("Deflate claimed benefit compressing 3 bytes")
	}
}

func TestInflateTolerantGoodStream(t *testing.T) {
	src := []byte(strings.Repeat("A", 300))
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(src)
	zw.Close()

	got := InflateTolerant(buf.Bytes(), len(src))
	if !bytes.Equal(got, src) {
		t.Fatal("InflateTolerant altered a perfectly valid stream")
	}
}

func TestInflateTolerantCorruptStream(t *testing.T) {
	src := []byte(strings.Repeat("B", 300))
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(src)
	zw.Close()

	corrupt := buf.Bytes()
	// Truncate mid-stream to force a decode failure partway through.
	// Cutting only the last few bytes would remove just the checksum and
	// block end, leaving every data byte recoverable.
	corrupt = corrupt[:len(corrupt)/2]

	got := InflateTolerant(corrupt, len(src))
	if len(got) != len(src) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(src))
	}
	// The tail should be zero-padded since the stream broke before completion.
	if got[len(got)-1] != 0 {
		t.Fatal("expected zero-padded tail on corrupt stream")
	}
}

func TestInflateTolerantGarbage(t *testing.T) {
	got := InflateTolerant([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 64)
	if len(got) != 64 {
		t.Fatalf("len(got) = %d, want 64", len(got))
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 for unreadable stream", i, b)
		}
	}
}
