package def

import (
	"bytes"
	"testing"

	"github.com/sergroj/rslod/internal/binio"
)

func samplePalette() []byte {
	p := make([]byte, PaletteSize)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// buildOneFrameDEF assembles a minimal compression-0 DEF with a single
// group of one frame, for exercising the header/group/frame parser.
func buildOneFrameDEF(t *testing.T) []byte {
	t.Helper()
	width, height := 4, 3
	pixels := []byte{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}

	frame := make([]byte, FrameHeaderSize)
	binio.PutLE32(frame, 0, uint32(FrameHeaderSize+len(pixels)))
	binio.PutLE32(frame, 4, 0) // compression 0 (stored)
	binio.PutLE32(frame, 8, uint32(width))
	binio.PutLE32(frame, 12, uint32(height))
	binio.PutLE32(frame, 16, uint32(width))
	binio.PutLE32(frame, 20, uint32(height))
	frame = append(frame, pixels...)

	frameOffset := uint32(HeaderSize + GroupHeaderSize + FrameNameSize + 4)

	out := make([]byte, HeaderSize)
	binio.PutLE32(out, 0, TypeCreature)
	binio.PutLE32(out, 4, uint32(width))
	binio.PutLE32(out, 8, uint32(height))
	binio.PutLE32(out, 12, 1)
	copy(out[16:HeaderSize], samplePalette())

	group := make([]byte, GroupHeaderSize)
	binio.PutLE32(group, 0, 0)
	binio.PutLE32(group, 4, 1)
	nameBuf := make([]byte, FrameNameSize)
	binio.PutNulString(nameBuf, "frame1")
	group = append(group, nameBuf...)
	offBuf := make([]byte, 4)
	binio.PutLE32(offBuf, 0, frameOffset)
	group = append(group, offBuf...)

	out = append(out, group...)
	out = append(out, frame...)
	return out
}

func TestDecodeStoredFrame(t *testing.T) {
	raw := buildOneFrameDEF(t)
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Groups) != 1 || len(f.Groups[0].Frames) != 1 {
		t.Fatalf("unexpected group/frame shape: %+v", f.Groups)
	}
	fr := f.Groups[0].Frames[0]
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(fr.Object, want) {
		t.Fatalf("Object = %v, want %v", fr.Object, want)
	}
}

func TestDecodeRLE32RoundTrip(t *testing.T) {
	width, height := uint32(8), uint32(2)
	object := make([]byte, width*height)
	shadow := make([]byte, width*height)
	for i := range shadow {
		shadow[i] = 0xFF
	}
	// Row 0: object pixels throughout.
	for x := uint32(0); x < width; x++ {
		object[x] = byte(x + 1)
	}
	// Row 1: a shadow fill of value 3 for the whole row.
	for x := uint32(0); x < width; x++ {
		shadow[width+x] = 3
	}

	enc := EncodeFrame("f", object, shadow, width, height, 0, 0, width, height)
	fr, err := decodeFrame(enc, 0)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if !bytes.Equal(fr.Object[:width], object[:width]) {
		t.Fatalf("row0 object = %v, want %v", fr.Object[:width], object[:width])
	}
	for x := uint32(0); x < width; x++ {
		if fr.Shadow[width+x] != 3 {
			t.Fatalf("row1 shadow[%d] = %d, want 3", x, fr.Shadow[width+x])
		}
	}
}

func TestLegacyRectangleOverflowQuirk(t *testing.T) {
	width, height := uint32(4), uint32(4)
	object := make([]byte, width*height)
	shadow := make([]byte, width*height)
	for i := range shadow {
		shadow[i] = 0xFF
	}
	for i := range object {
		object[i] = byte(i + 1)
	}

	enc := EncodeFrame("f", object, shadow, width, height, 0, 0, width, height)
	// Corrupt the rectangle fields the way the legacy writer omitted them:
	// bump frame_w/frame_h past full_w/full_h.
	binio.PutLE32(enc, 16, width+1)
	binio.PutLE32(enc, 20, height+1)

	fr, err := decodeFrame(enc, 0)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if fr.Width != width || fr.Height != height {
		t.Fatalf("dimensions = %dx%d, want %dx%d", fr.Width, fr.Height, width, height)
	}
	if fr.Left != 0 || fr.Top != 0 {
		t.Fatalf("rectangle origin = (%d,%d), want (0,0)", fr.Left, fr.Top)
	}
}

func TestFrameDurationTable(t *testing.T) {
	cases := []struct {
		typ   string
		group uint32
		idx   int
		want  int64
	}{
		{"9", 4, 5, 1000},
		{"9", 1, 0, 125},
		{"2", 2, 7, 3000},
		{"4", 0, 0, 100},
	}
	for _, c := range cases {
		got := FrameDuration(c.typ, c.group, c.idx, nil, false)
		if got.Milliseconds() != c.want {
			t.Errorf("FrameDuration(%q, %d, %d) = %dms, want %dms", c.typ, c.group, c.idx, got.Milliseconds(), c.want)
		}
	}
}

func TestMostRepeatedFrameIndex(t *testing.T) {
	frames := []*Frame{{Name: "a"}, {Name: "b"}, {Name: "a"}, {Name: "a"}}
	if got := MostRepeatedFrameIndex(frames); got != 0 {
		t.Fatalf("MostRepeatedFrameIndex = %d, want 0 (first occurrence of 'a')", got)
	}
}
