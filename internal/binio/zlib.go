package binio

import (
	"bytes"
	"compress/zlib"
	"io"
)

// Inflate decompresses the zlib stream r in full strictness: any corruption
// anywhere in the stream is surfaced as an error.
func Inflate(r io.Reader) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// InflateTolerant decompresses src, expecting exactly wantSize bytes of
// output. It first attempts a normal whole-buffer inflate; on any failure
// (corrupt stream, truncated deflate block, bad checksum) it falls back to
// reading as many decompressed bytes as the stream will yield before it
// breaks, then zero-pads the remainder up to wantSize.
//
// This mirrors the source archive reader's "ignore unzip errors" mode used
// when extracting from archives that are known to carry a few damaged
// entries: callers get a best-effort buffer of the promised length instead
// of a hard failure.
func InflateTolerant(src []byte, wantSize int) []byte {
	out := make([]byte, wantSize)

	if zr, err := zlib.NewReader(bytes.NewReader(src)); err == nil {
		n, rerr := io.ReadFull(zr, out)
		zr.Close()
		if rerr == nil || rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			if n == wantSize {
				return out
			}
		}
	}

	// Strict path failed somewhere in the middle of the stream (or never
	// got going at all). Drive the inflate incrementally and keep
	// whatever prefix of decompressed bytes we can recover, zero-padding
	// the rest.
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return out
	}
	defer zr.Close()

	got := 0
	chunk := make([]byte, 4096)
	for got < wantSize {
		n, rerr := zr.Read(chunk)
		if n > 0 {
			copy(out[got:], chunk[:n])
			got += n
		}
		if rerr != nil {
			break
		}
	}
	return out
}

// Deflate compresses src at the given level (see compress/flate level
// constants). It returns the compressed bytes and true only when the result
// is strictly smaller than src — callers that want "keep compressed only if
// it helps" semantics (directory-table Add, bitmap/sprite packers) check the
// returned bool and fall back to storing src raw otherwise.
func Deflate(src []byte, level int) ([]byte, bool) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, false
	}
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, false
	}
	if err := zw.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(src) {
		return nil, false
	}
	return buf.Bytes(), true
}
