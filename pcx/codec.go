// Package pcx implements the Heroes-era "PCX" blob: a thin wrapper used to
// carry an indexed or RGB bitmap inside a Heroes LOD, distinct from the
// real PC Paintbrush format despite the name. Grounded on the PCX handling
// in RSLod_part2.py / RSGraphics.py.
package pcx

import (
	"fmt"

	"github.com/sergroj/rslod/internal/binio"
)

// HeaderSize is the fixed 12-byte PCX header length.
const HeaderSize = 12

// ErrFormat reports a structural PCX decode failure.
type ErrFormat struct{ Reason string }

func (e *ErrFormat) Error() string { return fmt.Sprintf("pcx: %s", e.Reason) }

// Image is a decoded PCX blob: either indexed (with a trailing 768-byte
// palette) or raw RGB, distinguished by whether Palette is non-nil.
type Image struct {
	Width, Height int
	// Pixels holds either one palette index per pixel (Palette != nil) or
	// 3 interleaved RGB bytes per pixel (Palette == nil).
	Pixels  []byte
	Palette []byte
}

// Decode parses raw (header + pixel data + optional palette) into an
// Image. Presence of a trailing palette is inferred from the header's
// declared image size: ImageSize == width*height means indexed with a
// 768-byte palette tail; ImageSize == 3*width*height means raw RGB with no
// palette.
func Decode(raw []byte) (*Image, error) {
	if len(raw) < HeaderSize {
		return nil, &ErrFormat{"payload shorter than header"}
	}
	imageSize := int(binio.ReadLE32(raw, 0))
	width := int(binio.ReadLE32(raw, 4))
	height := int(binio.ReadLE32(raw, 8))

	if len(raw) < HeaderSize+imageSize {
		return nil, &ErrFormat{"payload shorter than declared image size"}
	}
	pixels := raw[HeaderSize : HeaderSize+imageSize]

	switch imageSize {
	case width * height:
		paletteStart := HeaderSize + imageSize
		if len(raw) < paletteStart+768 {
			return nil, &ErrFormat{"indexed PCX missing trailing palette"}
		}
		return &Image{Width: width, Height: height, Pixels: pixels, Palette: raw[paletteStart : paletteStart+768]}, nil
	case 3 * width * height:
		return &Image{Width: width, Height: height, Pixels: pixels}, nil
	default:
		return nil, &ErrFormat{"image size matches neither indexed nor RGB layout"}
	}
}

// Encode serializes img back into a PCX blob.
func Encode(img *Image) []byte {
	out := make([]byte, HeaderSize)
	binio.PutLE32(out, 0, uint32(len(img.Pixels)))
	binio.PutLE32(out, 4, uint32(img.Width))
	binio.PutLE32(out, 8, uint32(img.Height))
	out = append(out, img.Pixels...)
	if img.Palette != nil {
		out = append(out, img.Palette...)
	}
	return out
}
