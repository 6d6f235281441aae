// Package binio provides little-endian binary primitives shared across the
// archive, bitmap, sprite and def packages: fixed-width field encode/decode
// over byte slices, and a reader helper that pads short reads with zeros
// instead of failing, matching the tolerance the game's own archive readers
// show toward truncated files.
package binio

import (
	"encoding/binary"
	"io"
)

// ReadLE16 decodes a little-endian uint16 at offset off in b.
func ReadLE16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadLE32 decodes a little-endian uint32 at offset off in b.
func ReadLE32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// PutLE16 encodes v as little-endian at offset off in b.
func PutLE16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// PutLE32 encodes v as little-endian at offset off in b.
func PutLE32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// ReadI32 decodes a little-endian signed int32 at offset off in b.
func ReadI32(b []byte, off int) int32 {
	return int32(ReadLE32(b, off))
}

// PutI32 encodes v as little-endian signed int32 at offset off in b.
func PutI32(b []byte, off int, v int32) {
	PutLE32(b, off, uint32(v))
}

// ReadPadded reads exactly n bytes from r starting at the stream's current
// position, zero-padding the tail when the underlying stream is shorter than
// n bytes rather than returning io.ErrUnexpectedEOF, so missing bytes read
// as zero.
func ReadPadded(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if read < n {
		for i := read; i < n; i++ {
			buf[i] = 0
		}
	}
	return buf, nil
}

// NulString returns the bytes of b before its first NUL (all of b when it
// holds none) as a string.
func NulString(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// PutNulString writes s into b, zero-padding (or truncating) to len(b).
func PutNulString(b []byte, s string) {
	for i := range b {
		b[i] = 0
	}
	copy(b, s)
}
