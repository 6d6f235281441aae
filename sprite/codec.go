// Package sprite implements the LOD sprite format: a small header, a
// per-row line-offset table, and a byte stream of alternating transparent/
// opaque run opcodes, optionally zlib-framed. Grounded on the sprite
// extraction path of RSLod_part4.py / RSGraphics.py.
package sprite

import (
	"bytes"
	"fmt"

	"github.com/sergroj/rslod/internal/binio"
)

// HeaderSize is the fixed sprite header length in bytes.
const HeaderSize = 20

// LineEntrySize is the byte width of one per-row offset-table entry.
const LineEntrySize = 8

// ErrFormat reports a structural sprite decode failure.
type ErrFormat struct{ Reason string }

func (e *ErrFormat) Error() string { return fmt.Sprintf("sprite: %s", e.Reason) }

// Header is the sprite record's fixed fields.
type Header struct {
	Size         uint32
	Width        uint16
	Height       uint16
	PaletteID    uint16
	Unk1         uint16
	YSkip        uint16
	Unk2         uint16
	UnpackedSize uint32
}

// Line is one row's opaque-extent hint plus its offset into the decoded
// opcode stream.
type Line struct {
	Left, Right int
	Offset      uint32
}

// Image is a decoded sprite: one palette index per pixel, 0 meaning
// transparent, over a Width x (Height-YSkip) canvas starting at row YSkip.
type Image struct {
	Header Header
	Width  int
	Height int
	YSkip  int
	Pixels []byte // (Height-YSkip) * Width, row-major; 0 = transparent
}

// Decode parses a sprite record's raw bytes into an Image.
func Decode(raw []byte, ignoreUnzipErrors bool) (*Image, error) {
	if len(raw) < HeaderSize {
		return nil, &ErrFormat{"payload shorter than header"}
	}
	h := Header{
		Size:         binio.ReadLE32(raw, 0),
		Width:        binio.ReadLE16(raw, 4),
		Height:       binio.ReadLE16(raw, 6),
		PaletteID:    binio.ReadLE16(raw, 8),
		Unk1:         binio.ReadLE16(raw, 10),
		YSkip:        binio.ReadLE16(raw, 12),
		Unk2:         binio.ReadLE16(raw, 14),
		UnpackedSize: binio.ReadLE32(raw, 16),
	}

	rows := int(h.Height) - int(h.YSkip)
	if rows < 0 {
		return nil, &ErrFormat{"y_skip exceeds height"}
	}
	tableOff := HeaderSize
	tableEnd := tableOff + rows*LineEntrySize
	if len(raw) < tableEnd {
		return nil, &ErrFormat{"line table truncated"}
	}

	lines := make([]Line, rows)
	for i := 0; i < rows; i++ {
		off := tableOff + i*LineEntrySize
		lines[i] = Line{
			Left:   int(binio.ReadLE16(raw, off)),
			Right:  int(binio.ReadLE16(raw, off+2)),
			Offset: binio.ReadLE32(raw, off+4),
		}
	}

	stream := raw[tableEnd:]
	if h.UnpackedSize != 0 {
		if ignoreUnzipErrors {
			stream = binio.InflateTolerant(stream, int(h.UnpackedSize))
		} else {
			decoded, err := binio.Inflate(bytes.NewReader(stream))
			if err != nil {
				return nil, err
			}
			stream = decoded
		}
	}

	img := &Image{Header: h, Width: int(h.Width), Height: int(h.Height), YSkip: int(h.YSkip)}
	img.Pixels = make([]byte, int(h.Width)*rows)

	for y, ln := range lines {
		decodeLine(img.Pixels[y*int(h.Width):(y+1)*int(h.Width)], stream, int(ln.Offset))
	}
	return img, nil
}

// decodeLine writes one decoded row into dst, reading run opcodes from
// stream starting at offset. Top-bit-set opcodes are transparent runs of
// length (opcode & 0x7F); top-bit-clear opcodes are opaque runs of that
// many literal palette indices.
func decodeLine(dst []byte, stream []byte, offset int) {
	x, pos := 0, offset
	for x < len(dst) {
		if pos >= len(stream) {
			return
		}
		op := stream[pos]
		pos++
		if op&0x80 != 0 {
			run := int(op & 0x7F)
			x += run // dst already zero-initialized (transparent)
			continue
		}
		run := int(op)
		for i := 0; i < run && x < len(dst); i++ {
			if pos >= len(stream) {
				return
			}
			dst[x] = stream[pos]
			pos++
			x++
		}
	}
}

// Encode packs pixels (width x rows palette indices, 0 meaning transparent)
// into a sprite record's raw bytes.
func Encode(pixels []byte, width, height, ySkip int, paletteID uint16) []byte {
	rows := height - ySkip
	var stream []byte
	lines := make([]Line, rows)

	for y := 0; y < rows; y++ {
		row := pixels[y*width : (y+1)*width]
		left, right := -1, -1
		off := uint32(len(stream))
		x := 0
		for x < width {
			if row[x] == 0 {
				run := 0
				for x+run < width && row[x+run] == 0 && run < 0x7F {
					run++
				}
				stream = append(stream, byte(0x80|run))
				x += run
				continue
			}
			if left == -1 {
				left = x
			}
			run := 0
			for x+run < width && row[x+run] != 0 && run < 127 {
				run++
			}
			stream = append(stream, byte(run))
			stream = append(stream, row[x:x+run]...)
			right = x + run
			x += run
		}
		if left == -1 {
			left, right = 0, 0
		}
		lines[y] = Line{Left: left, Right: right, Offset: off}
	}

	unpackedSize := uint32(0)
	payload := stream
	if packed, ok := binio.Deflate(stream, 6); ok {
		payload = packed
		unpackedSize = uint32(len(stream))
	}

	out := make([]byte, HeaderSize)
	binio.PutLE16(out, 4, uint16(width))
	binio.PutLE16(out, 6, uint16(height))
	binio.PutLE16(out, 8, paletteID)
	binio.PutLE16(out, 12, uint16(ySkip))
	binio.PutLE32(out, 16, unpackedSize)

	for _, ln := range lines {
		entry := make([]byte, LineEntrySize)
		binio.PutLE16(entry, 0, uint16(ln.Left))
		binio.PutLE16(entry, 2, uint16(ln.Right))
		binio.PutLE32(entry, 4, ln.Offset)
		out = append(out, entry...)
	}
	out = append(out, payload...)

	binio.PutLE32(out, 0, uint32(len(out)))
	return out
}
