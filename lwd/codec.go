// Package lwd implements the LWD transparent-bitmap pixel codec: a run-
// length stream of RGB565 opaque runs and transparent runs, with no
// dimensions stored in the blob itself — callers supply width/height via
// a lookup keyed by entry name. Grounded on the LWD extraction path of
// RSLod_part2.py.
package lwd

import "fmt"

// ErrFormat reports a structural LWD decode failure.
type ErrFormat struct{ Reason string }

func (e *ErrFormat) Error() string { return fmt.Sprintf("lwd: %s", e.Reason) }

// DimensionLookup resolves an entry's pixel dimensions by name, since they
// are not stored in the LWD payload itself.
type DimensionLookup func(name string) (width, height int, ok error)

// Image is a decoded LWD bitmap: one RGB565 value per pixel, with a
// transparent-run bitmask marking which pixels have no colour at all.
type Image struct {
	Width, Height int
	Pixels        []uint16 // RGB565, row-major
	Transparent   []bool   // true where no run wrote a pixel
}

// Decode parses raw (a run-length stream of alternating opaque/transparent
// runs) into a Width x Height image. Each run is {count: u16, then, if
// opaque, count RGB565 u16 pixel values; if transparent, no payload}.
// Runs alternate starting with an opaque run. A run may be empty (Encode
// writes a zero-length opaque run when the image starts with a transparent
// pixel); an empty run still counts toward the alternation.
func Decode(raw []byte, width, height int) (*Image, error) {
	img := &Image{Width: width, Height: height, Pixels: make([]uint16, width*height), Transparent: make([]bool, width*height)}
	for i := range img.Transparent {
		img.Transparent[i] = true
	}

	pos := 0
	x := 0
	opaque := true
	for x < len(img.Pixels) {
		if pos+2 > len(raw) {
			break
		}
		count := int(raw[pos]) | int(raw[pos+1])<<8
		pos += 2
		if opaque {
			for i := 0; i < count && x < len(img.Pixels); i++ {
				if pos+2 > len(raw) {
					break
				}
				v := uint16(raw[pos]) | uint16(raw[pos+1])<<8
				pos += 2
				img.Pixels[x] = v
				img.Transparent[x] = false
				x++
			}
		} else {
			x += count
		}
		opaque = !opaque
	}
	return img, nil
}

// Encode serializes img back into the run-length stream.
func Encode(img *Image) []byte {
	var out []byte
	x := 0
	n := len(img.Pixels)
	opaque := true
	for x < n {
		run := 0
		for x+run < n && img.Transparent[x+run] != opaque && run < 0xFFFF {
			run++
		}
		out = append(out, byte(run), byte(run>>8))
		if opaque {
			for i := 0; i < run; i++ {
				v := img.Pixels[x+i]
				out = append(out, byte(v), byte(v>>8))
			}
		}
		x += run
		opaque = !opaque
	}
	return out
}

// RGB565ToRGB converts one RGB565 value to 8-bit-per-channel RGB.
func RGB565ToRGB(v uint16) (r, g, b byte) {
	r = byte((v >> 11 & 0x1F) * 255 / 31)
	g = byte((v >> 5 & 0x3F) * 255 / 63)
	b = byte((v & 0x1F) * 255 / 31)
	return
}
