// Package def implements the DEF sprite-animation container: a palette,
// a set of named groups, and per-group frames addressed by absolute file
// offset, with three run-length compression modes decoding into separate
// object and shadow channels. Grounded on RSDef.py's TRSDefWrapper.
package def

import (
	"fmt"

	"github.com/sergroj/rslod/internal/binio"
)

// HeaderSize is the fixed DEF file header: type, canvas dimensions, group
// count (4 x u32) followed by the 768-byte palette.
const HeaderSize = 16 + PaletteSize

// PaletteSize is the DEF palette length, identical to a LOD bitmap palette.
const PaletteSize = 768

// GroupHeaderSize is the fixed portion of one group block, before its
// per-item name and offset tables.
const GroupHeaderSize = 16

// FrameNameSize is the fixed width of one frame's name field.
const FrameNameSize = 13

// FrameHeaderSize is the fixed portion of one frame block.
const FrameHeaderSize = 32

// Recognised DEF type codes.
const (
	TypeSpell       = 0x40
	TypeSprite      = 0x42
	TypeCreature    = 0x43
	TypeMapObject   = 0x44
	TypeCreatureAlt = 0x45
	TypeHero        = 0x46
	TypeTerrain     = 0x47
	TypeCursor      = 0x49
)

// ErrFormat reports a structural DEF decode failure.
type ErrFormat struct{ Reason string }

func (e *ErrFormat) Error() string { return fmt.Sprintf("def: %s", e.Reason) }

// Reserved palette-index roles, per the DEF palette convention.
const (
	RoleTransparent = 0
	RoleEdgeShadow  = 1
	RoleBody2       = 2 // HotA shadow variant
	RoleEdge2       = 3 // HotA shadow variant
	RoleBodyShadow  = 4
	RoleSelectHi    = 5
	RoleSelectBody  = 6
	RoleSelectEdge  = 7
)

// Header is the fixed DEF file header.
type Header struct {
	Type        uint32
	CanvasW     uint32
	CanvasH     uint32
	GroupCount  uint32
	Palette     []byte // 768 bytes
}

// Frame is one decoded animation frame: a sub-rectangle positioned within
// the DEF's logical canvas.
type Frame struct {
	Name        string
	Compression uint32
	FullW       uint32
	FullH       uint32
	Left        uint32
	Top         uint32
	Width       uint32
	Height      uint32

	// Object and Shadow are Width*Height palette-index buffers. Shadow
	// is initialized to 0xFF (meaning "no shadow, use object").
	Object []byte
	Shadow []byte

	offset uint32
}

// Group is a named animation: an ordered sequence of frames, sharing a
// numeric group id.
type Group struct {
	ID     uint32
	Frames []*Frame
}

// File is a fully-decoded DEF: header, palette and groups.
type File struct {
	Header Header
	Groups []*Group
}

// Decode parses raw (an entire DEF entry's bytes, as extracted from an
// archive) into a File with every frame decoded.
func Decode(raw []byte) (*File, error) {
	if len(raw) < HeaderSize {
		return nil, &ErrFormat{"payload shorter than header"}
	}
	h := Header{
		Type:       binio.ReadLE32(raw, 0),
		CanvasW:    binio.ReadLE32(raw, 4),
		CanvasH:    binio.ReadLE32(raw, 8),
		GroupCount: binio.ReadLE32(raw, 12),
		Palette:    raw[16:HeaderSize],
	}

	f := &File{Header: h}
	pos := HeaderSize
	offsetCache := map[uint32]*Frame{}

	for g := uint32(0); g < h.GroupCount; g++ {
		if pos+GroupHeaderSize > len(raw) {
			return nil, &ErrFormat{"group table truncated"}
		}
		groupID := binio.ReadLE32(raw, pos)
		itemCount := binio.ReadLE32(raw, pos+4)
		pos += GroupHeaderSize

		names := make([]string, itemCount)
		for i := uint32(0); i < itemCount; i++ {
			if pos+FrameNameSize > len(raw) {
				return nil, &ErrFormat{"frame name table truncated"}
			}
			names[i] = binio.NulString(raw[pos : pos+FrameNameSize])
			pos += FrameNameSize
		}

		offsets := make([]uint32, itemCount)
		for i := uint32(0); i < itemCount; i++ {
			if pos+4 > len(raw) {
				return nil, &ErrFormat{"frame offset table truncated"}
			}
			offsets[i] = binio.ReadLE32(raw, pos)
			pos += 4
		}

		group := &Group{ID: groupID}
		for i := uint32(0); i < itemCount; i++ {
			frame, ok := offsetCache[offsets[i]]
			if !ok {
				var err error
				frame, err = decodeFrame(raw, int(offsets[i]))
				if err != nil {
					return nil, err
				}
				frame.offset = offsets[i]
				offsetCache[offsets[i]] = frame
			}
			// Same payload offset may be shared by several names in a
			// group; give each entry its own Frame header with the
			// group-local name but the shared decoded pixel buffers.
			named := *frame
			named.Name = names[i]
			group.Frames = append(group.Frames, &named)
		}
		f.Groups = append(f.Groups, group)
	}
	return f, nil
}

func decodeFrame(raw []byte, off int) (*Frame, error) {
	if off < 0 || off+FrameHeaderSize > len(raw) {
		return nil, &ErrFormat{"frame offset out of range"}
	}
	fileSize := binio.ReadLE32(raw, off)
	compression := binio.ReadLE32(raw, off+4)
	fullW := binio.ReadLE32(raw, off+8)
	fullH := binio.ReadLE32(raw, off+12)
	frameW := binio.ReadLE32(raw, off+16)
	frameH := binio.ReadLE32(raw, off+20)
	left := binio.ReadLE32(raw, off+24)
	top := binio.ReadLE32(raw, off+28)
	body := off + FrameHeaderSize

	// Legacy quirk: some compression==1 frames omit the rectangle fields
	// entirely; the four words we just read as (frame_w, frame_h, left,
	// top) are actually the start of the line data, and frame_w/frame_h
	// ended up holding values larger than full_w/full_h. Rewind 16 bytes
	// and treat the frame as covering the whole canvas.
	if frameW > fullW && frameH > fullH && compression == 1 {
		frameW, frameH = fullW, fullH
		left, top = 0, 0
		body = off + FrameHeaderSize - 16
	}

	if frameW*frameH > fullW*fullH {
		return nil, &ErrFormat{"frame rectangle exceeds full image area"}
	}

	f := &Frame{
		Compression: compression,
		FullW:       fullW,
		FullH:       fullH,
		Left:        left,
		Top:         top,
		Width:       frameW,
		Height:      frameH,
	}
	f.Object = make([]byte, frameW*frameH)
	f.Shadow = make([]byte, frameW*frameH)
	for i := range f.Shadow {
		f.Shadow[i] = 0xFF
	}
	if frameW == 0 || frameH == 0 {
		return f, nil
	}

	end := off + int(fileSize)
	if end > len(raw) {
		end = len(raw)
	}
	block := raw[body:end]

	switch compression {
	case 0:
		decodeStored(f, block)
	case 1:
		decodeRLE32(f, block)
	case 2:
		decodeRLE16(f, block, 32)
	case 3:
		decodeRLE16Tiled(f, block)
	default:
		return nil, &ErrFormat{fmt.Sprintf("unknown compression mode %d", compression)}
	}
	return f, nil
}

// decodeStored copies frame_w*frame_h literal palette indices row-major
// straight into the object channel; the shadow channel stays "use object".
func decodeStored(f *Frame, block []byte) {
	n := int(f.Width * f.Height)
	if n > len(block) {
		n = len(block)
	}
	copy(f.Object, block[:n])
}

// decodeRLE32 implements compression mode 1: per-row u32 offset table,
// then opcodes {code byte, length-1 byte, [payload if code==0xFF]}.
func decodeRLE32(f *Frame, block []byte) {
	h := int(f.Height)
	w := int(f.Width)
	if h*4 > len(block) {
		return
	}
	for y := 0; y < h; y++ {
		rowOff := int(binio.ReadLE32(block, y*4))
		decodeRow32(f.Object[y*w:(y+1)*w], f.Shadow[y*w:(y+1)*w], block, rowOff)
	}
}

func decodeRow32(objRow, shadowRow []byte, block []byte, pos int) {
	x := 0
	w := len(objRow)
	for x < w {
		if pos+2 > len(block) {
			return
		}
		code := block[pos]
		length := int(block[pos+1]) + 1
		pos += 2
		if code == 0xFF {
			if pos+length > len(block) {
				length = len(block) - pos
			}
			n := length
			if x+n > w {
				n = w - x
			}
			copy(objRow[x:x+n], block[pos:pos+n])
			pos += length
			x += length
		} else {
			n := length
			if x+n > w {
				n = w - x
			}
			for i := 0; i < n; i++ {
				shadowRow[x+i] = code
			}
			x += length
		}
	}
}

// decodeRLE16 implements compression mode 2 (and the row layout shared with
// mode 3, whose caller passes a frame already reshaped to 32-pixel rows;
// tileWidth itself is not read): per-row u16 offset table,
// opcodes of one byte `(code<<5)|(length-1)` with code in 0..7. code==7 is
// a literal object run; any other code fills the shadow channel with that
// value; code==5 (selection) additionally writes 5 into the object buffer.
func decodeRLE16(f *Frame, block []byte, tileWidth int) {
	h := int(f.Height)
	w := int(f.Width)
	if h*2 > len(block) {
		return
	}
	for y := 0; y < h; y++ {
		rowOff := int(binio.ReadLE16(block, y*2))
		decodeRow16(f.Object[y*w:(y+1)*w], f.Shadow[y*w:(y+1)*w], block, rowOff)
	}
}

func decodeRow16(objRow, shadowRow []byte, block []byte, pos int) {
	x := 0
	w := len(objRow)
	for x < w {
		if pos >= len(block) {
			return
		}
		op := block[pos]
		pos++
		code := op >> 5
		length := int(op&0x1F) + 1

		if code == 7 {
			n := length
			if pos+n > len(block) {
				n = len(block) - pos
			}
			if x+n > w {
				n = w - x
			}
			copy(objRow[x:x+n], block[pos:pos+n])
			pos += length
			x += length
			continue
		}

		n := length
		if x+n > w {
			n = w - x
		}
		for i := 0; i < n; i++ {
			shadowRow[x+i] = code
		}
		if code == 5 {
			for i := 0; i < n; i++ {
				objRow[x+i] = 5
			}
		}
		x += length
	}
}

// decodeRLE16Tiled implements compression mode 3: the same row opcode
// scheme as mode 2, but the frame is logically re-tiled into 32-wide rows
// before the rectangle is reassembled into Width x Height.
func decodeRLE16Tiled(f *Frame, block []byte) {
	const tile = 32
	origW, origH := int(f.Width), int(f.Height)
	tiledH := origH * (origW / tile)
	if origW == 0 || tiledH == 0 {
		return
	}

	tiledObject := make([]byte, tile*tiledH)
	tiledShadow := make([]byte, tile*tiledH)
	for i := range tiledShadow {
		tiledShadow[i] = 0xFF
	}
	tiledFrame := &Frame{Width: uint32(tile), Height: uint32(tiledH), Object: tiledObject, Shadow: tiledShadow}
	decodeRLE16(tiledFrame, block, tile)

	// Re-tile: tiledH rows of width 32 map back onto origH rows of width
	// origW, origW/32 tiles per row, left to right.
	tilesPerRow := origW / tile
	for y := 0; y < origH; y++ {
		for t := 0; t < tilesPerRow; t++ {
			srcRow := y*tilesPerRow + t
			copy(f.Object[y*origW+t*tile:y*origW+(t+1)*tile], tiledObject[srcRow*tile:(srcRow+1)*tile])
			copy(f.Shadow[y*origW+t*tile:y*origW+(t+1)*tile], tiledShadow[srcRow*tile:(srcRow+1)*tile])
		}
	}
}
