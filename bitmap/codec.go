// Package bitmap implements the LOD bitmap format: a 32-byte header, a
// possibly zlib-compressed palette-indexed pixel payload, a mipmap chain,
// and a trailing 768-byte palette. Grounded on the bitmap read/write paths
// of RSLod_part4.py and the mipmap generation in RSGraphics.py.
package bitmap

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"

	"github.com/sergroj/rslod/internal/binio"
)

// HeaderSize is the fixed 32-byte bitmap header length.
const HeaderSize = 32

// PaletteSize is the trailing palette length.
const PaletteSize = 768

// ErrFormat is returned when a bitmap blob fails a structural invariant.
type ErrFormat struct{ Reason string }

func (e *ErrFormat) Error() string { return fmt.Sprintf("bitmap: %s", e.Reason) }

// Header is the 32-byte LOD bitmap header, decoded in full.
type Header struct {
	Size         uint32
	DataSize     uint32
	Width        uint16
	Height       uint16
	WidthLn2     byte
	HeightLn2    byte
	WidthMinus1  uint16
	HeightMinus1 uint16
	PaletteID    uint16
	Reserved     uint16
	UnpackedSize uint32
	BitsFlags    uint32
}

const mipmapFlag = 1 << 0

func isPow2(n uint16) bool { return n != 0 && n&(n-1) == 0 }

func log2u16(n uint16) byte {
	if n == 0 {
		return 0
	}
	return byte(bits.Len16(n) - 1)
}

func decodeHeader(b []byte) Header {
	return Header{
		Size:         binio.ReadLE32(b, 0),
		DataSize:     binio.ReadLE32(b, 4),
		Width:        binio.ReadLE16(b, 8),
		Height:       binio.ReadLE16(b, 10),
		WidthLn2:     b[12],
		HeightLn2:    b[13],
		WidthMinus1:  binio.ReadLE16(b, 14),
		HeightMinus1: binio.ReadLE16(b, 16),
		PaletteID:    binio.ReadLE16(b, 18),
		Reserved:     binio.ReadLE16(b, 20),
		UnpackedSize: binio.ReadLE32(b, 22),
		BitsFlags:    binio.ReadLE32(b, 26),
	}
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	binio.PutLE32(b, 0, h.Size)
	binio.PutLE32(b, 4, h.DataSize)
	binio.PutLE16(b, 8, h.Width)
	binio.PutLE16(b, 10, h.Height)
	b[12] = h.WidthLn2
	b[13] = h.HeightLn2
	binio.PutLE16(b, 14, h.WidthMinus1)
	binio.PutLE16(b, 16, h.HeightMinus1)
	binio.PutLE16(b, 18, h.PaletteID)
	binio.PutLE16(b, 20, h.Reserved)
	binio.PutLE32(b, 22, h.UnpackedSize)
	binio.PutLE32(b, 26, h.BitsFlags)
	return b
}

// Image is a decoded bitmap: base pixels plus the mip chain (if any) and
// its palette.
type Image struct {
	Header  Header
	Width   int
	Height  int
	Pixels  []byte // base level, row-major, one palette index per pixel
	Mips    [][]byte
	Palette []byte
}

// Decode reads one bitmap record's raw bytes (header + payload + palette,
// exactly as stored in the archive) and returns its decoded form.
func Decode(raw []byte, ignoreUnzipErrors bool) (*Image, error) {
	if len(raw) < HeaderSize+PaletteSize {
		return nil, &ErrFormat{"payload shorter than header+palette"}
	}
	h := decodeHeader(raw)
	payload := raw[HeaderSize : len(raw)-PaletteSize]
	palette := raw[len(raw)-PaletteSize:]

	var pixels []byte
	if h.UnpackedSize == 0 {
		pixels = payload
	} else if ignoreUnzipErrors {
		pixels = binio.InflateTolerant(payload, int(h.UnpackedSize))
	} else {
		decoded, err := binio.Inflate(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		pixels = decoded
	}

	base := int(h.Width) * int(h.Height)
	if len(pixels) < base {
		return nil, &ErrFormat{"decompressed payload smaller than base image"}
	}

	img := &Image{Header: h, Width: int(h.Width), Height: int(h.Height), Pixels: pixels[:base], Palette: palette}

	if h.BitsFlags&mipmapFlag != 0 {
		rest := pixels[base:]
		w, ht := int(h.Width), int(h.Height)
		for level := 0; level < 3 && w >= 2 && ht >= 2; level++ {
			w, ht = w/2, ht/2
			n := w * ht
			if len(rest) < n {
				break
			}
			img.Mips = append(img.Mips, rest[:n])
			rest = rest[n:]
		}
	}
	return img, nil
}

// PackOptions controls mipmap generation and compression during Encode.
type PackOptions struct {
	// Mipmap requests generation of a halved mip chain; both dimensions
	// must be powers of two and at least 4.
	Mipmap bool
	// TransparentIndex, when TransparentSet, is excluded from mip box
	// averaging (the pixel contributes no weight to its 2x2 group).
	TransparentIndex byte
	TransparentSet   bool
	PaletteID        uint16
}

// Encode packs pixels (width x height palette indices) plus palette (768
// bytes) into a bitmap record's raw bytes.
func Encode(pixels []byte, width, height int, palette []byte, opts PackOptions) ([]byte, error) {
	if len(palette) != PaletteSize {
		return nil, &ErrFormat{"palette must be exactly 768 bytes"}
	}
	if len(pixels) != width*height {
		return nil, &ErrFormat{"pixel buffer does not match width*height"}
	}

	var bitsFlags uint32
	body := append([]byte(nil), pixels...)

	if opts.Mipmap {
		if !isPow2(uint16(width)) || !isPow2(uint16(height)) || width < 4 || height < 4 {
			return nil, &ErrFormat{"mipmap requires power-of-two dimensions >= 4"}
		}
		bitsFlags |= mipmapFlag
		w, h := width, height
		src := pixels
		for level := 0; level < 3 && w >= 2 && h >= 2; level++ {
			w, h = w/2, h/2
			mip := boxDownsample(src, w*2, h*2, palette, opts)
			body = append(body, mip...)
			src = mip
		}
	}

	unpackedSize := uint32(0)
	payload := body
	if packed, ok := binio.Deflate(body, 6); ok {
		payload = packed
		unpackedSize = uint32(len(body))
	}

	hdr := Header{
		Size:         uint32(HeaderSize + len(payload) + PaletteSize),
		DataSize:     uint32(len(payload)),
		Width:        uint16(width),
		Height:       uint16(height),
		UnpackedSize: unpackedSize,
		PaletteID:    opts.PaletteID,
		BitsFlags:    bitsFlags,
	}
	if isPow2(uint16(width)) {
		hdr.WidthLn2 = log2u16(uint16(width))
		hdr.WidthMinus1 = uint16(width - 1)
	}
	if isPow2(uint16(height)) {
		hdr.HeightLn2 = log2u16(uint16(height))
		hdr.HeightMinus1 = uint16(height - 1)
	}

	out := make([]byte, 0, HeaderSize+len(payload)+PaletteSize)
	out = append(out, encodeHeader(hdr)...)
	out = append(out, payload...)
	out = append(out, palette...)
	return out, nil
}

// boxDownsample halves srcW x srcH indexed pixels by 2x2 box averaging in
// RGB space (via palette), excluding the transparent index from the
// average when opts.TransparentSet. The result is re-quantized to the
// nearest palette entry.
func boxDownsample(src []byte, srcW, srcH int, palette []byte, opts PackOptions) []byte {
	dstW, dstH := srcW/2, srcH/2
	out := make([]byte, dstW*dstH)
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			var rsum, gsum, bsum, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					idx := src[(y*2+dy)*srcW+(x*2+dx)]
					if opts.TransparentSet && idx == opts.TransparentIndex {
						continue
					}
					r, g, b := palette[int(idx)*3], palette[int(idx)*3+1], palette[int(idx)*3+2]
					rsum += int(r)
					gsum += int(g)
					bsum += int(b)
					n++
				}
			}
			if n == 0 {
				out[y*dstW+x] = opts.TransparentIndex
				continue
			}
			out[y*dstW+x] = nearestPaletteIndex(palette, byte(rsum/n), byte(gsum/n), byte(bsum/n))
		}
	}
	return out
}

func nearestPaletteIndex(palette []byte, r, g, b byte) byte {
	best := 0
	bestDist := 1 << 30
	for i := 0; i < 256; i++ {
		dr := int(palette[i*3]) - int(r)
		dg := int(palette[i*3+1]) - int(g)
		db := int(palette[i*3+2]) - int(b)
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return byte(best)
}

// WriteRGBA writes img decoded through palette as non-premultiplied RGBA
// rows to w (caller handles framing/container format).
func WriteRGBA(w io.Writer, img *Image) error {
	buf := make([]byte, img.Width*4)
	for y := 0; y < img.Height; y++ {
		row := img.Pixels[y*img.Width : (y+1)*img.Width]
		for x, idx := range row {
			c := img.Palette[int(idx)*3 : int(idx)*3+3]
			buf[x*4] = c[0]
			buf[x*4+1] = c[1]
			buf[x*4+2] = c[2]
			buf[x*4+3] = 0xFF
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
