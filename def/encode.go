package def

import "github.com/sergroj/rslod/internal/binio"

// boundingBox computes the tightest rectangle enclosing every non-
// transparent object pixel in a fullW x fullH canvas, rounded outward to
// 32-pixel tiles when tiled is set (compression mode 3's requirement).
func boundingBox(canvas []byte, fullW, fullH int, tiled bool) (left, top, w, h int, empty bool) {
	minX, minY, maxX, maxY := fullW, fullH, -1, -1
	for y := 0; y < fullH; y++ {
		for x := 0; x < fullW; x++ {
			if canvas[y*fullW+x] == RoleTransparent {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return 0, 0, 0, 0, true
	}
	if tiled {
		minX -= minX % 32
		maxX += (32 - (maxX+1)%32) % 32
	}
	return minX, minY, maxX - minX + 1, maxY - minY + 1, false
}

// FrameFromCanvas builds a Frame by computing the bounding box of non-
// transparent object pixels in a pair of full-canvas object/shadow
// buffers (fullW x fullH each), per the DEF pack path's first step. tiled
// requests 32-pixel-aligned rounding for compression-mode-3 output.
func FrameFromCanvas(name string, object, shadow []byte, fullW, fullH int, tiled bool) *Frame {
	left, top, w, h, empty := boundingBox(object, fullW, fullH, tiled)
	f := &Frame{Name: name, FullW: uint32(fullW), FullH: uint32(fullH)}
	if empty {
		return f
	}
	f.Left, f.Top, f.Width, f.Height = uint32(left), uint32(top), uint32(w), uint32(h)
	f.Object = make([]byte, w*h)
	f.Shadow = make([]byte, w*h)
	for y := 0; y < h; y++ {
		srcOff := (top+y)*fullW + left
		copy(f.Object[y*w:(y+1)*w], object[srcOff:srcOff+w])
		copy(f.Shadow[y*w:(y+1)*w], shadow[srcOff:srcOff+w])
	}
	return f
}

// EncodeFrame serializes one frame's object/shadow canvases (already
// cropped to width x height at the given rectangle) using compression
// mode 1 (u32 row offsets, counted from the start of the offset table).
// Pixels whose shadow code is 0xFF are stored as object literals; runs of
// any other shadow code are stored as shadow fills, and the object pixels
// under them are not stored.
func EncodeFrame(name string, object, shadow []byte, fullW, fullH, left, top, width, height uint32) []byte {
	var stream []byte
	rowOffsets := make([]uint32, height)

	for y := uint32(0); y < height; y++ {
		rowOffsets[y] = height*4 + uint32(len(stream))
		objRow := object[y*width : (y+1)*width]
		shRow := shadow[y*width : (y+1)*width]
		stream = append(stream, encodeRow32(objRow, shRow)...)
	}

	body := make([]byte, len(rowOffsets)*4)
	for y, off := range rowOffsets {
		binio.PutLE32(body, y*4, off)
	}
	body = append(body, stream...)

	hdr := make([]byte, FrameHeaderSize)
	binio.PutLE32(hdr, 0, uint32(FrameHeaderSize+len(body)))
	binio.PutLE32(hdr, 4, 1) // compression 1
	binio.PutLE32(hdr, 8, fullW)
	binio.PutLE32(hdr, 12, fullH)
	binio.PutLE32(hdr, 16, width)
	binio.PutLE32(hdr, 20, height)
	binio.PutLE32(hdr, 24, left)
	binio.PutLE32(hdr, 28, top)

	return append(hdr, body...)
}

// encodeRow32 emits compression-1 opcodes for one row: runs of object
// pixels become {0xFF, length-1, pixels...}; runs of a uniform shadow
// value (including the 0xFF "no shadow" sentinel's absence) become
// {code, length-1}.
func encodeRow32(objRow, shRow []byte) []byte {
	var out []byte
	x := 0
	w := len(objRow)
	for x < w {
		if shRow[x] == 0xFF {
			run := 0
			for x+run < w && shRow[x+run] == 0xFF && run < 256 {
				run++
			}
			out = append(out, 0xFF, byte(run-1))
			out = append(out, objRow[x:x+run]...)
			x += run
			continue
		}
		code := shRow[x]
		run := 0
		for x+run < w && shRow[x+run] == code && run < 256 {
			run++
		}
		out = append(out, code, byte(run-1))
		x += run
	}
	return out
}

// Frame name/offset tables and the assembled group/frame blocks are built
// by Encode, which places each distinct *Frame value once and lets every
// group slot holding that same *Frame reference the same offset. Frames are
// not compared by content: Decode gives each name its own *Frame, so
// re-encoding a decoded file writes one block per name.
func Encode(f *File) []byte {
	out := make([]byte, HeaderSize)
	binio.PutLE32(out, 0, f.Header.Type)
	binio.PutLE32(out, 4, f.Header.CanvasW)
	binio.PutLE32(out, 8, f.Header.CanvasH)
	binio.PutLE32(out, 12, uint32(len(f.Groups)))
	copy(out[16:HeaderSize], f.Header.Palette)

	seenBytes := map[*Frame][]byte{}
	var order []*Frame

	groupTables := make([][]byte, len(f.Groups))
	for gi, g := range f.Groups {
		tbl := make([]byte, GroupHeaderSize)
		binio.PutLE32(tbl, 0, g.ID)
		binio.PutLE32(tbl, 4, uint32(len(g.Frames)))

		names := make([]byte, 0, len(g.Frames)*FrameNameSize)
		for _, fr := range g.Frames {
			nameBuf := make([]byte, FrameNameSize)
			binio.PutNulString(nameBuf, fr.Name)
			names = append(names, nameBuf...)

			if _, ok := seenBytes[fr]; !ok {
				enc := EncodeFrame(fr.Name, fr.Object, fr.Shadow, fr.FullW, fr.FullH, fr.Left, fr.Top, fr.Width, fr.Height)
				seenBytes[fr] = enc
				order = append(order, fr)
			}
		}
		tbl = append(tbl, names...)
		tbl = append(tbl, make([]byte, len(g.Frames)*4)...) // offset column, patched below
		groupTables[gi] = tbl
	}

	groupTablesTotal := 0
	for _, t := range groupTables {
		groupTablesTotal += len(t)
	}
	blockBase := HeaderSize + groupTablesTotal

	// frameBlocks and each frame's absolute offset both derive from the
	// same `order` slice, so the two stay in lockstep.
	var frameBlocks []byte
	absolute := map[*Frame]uint32{}
	cursor := blockBase
	for _, fr := range order {
		absolute[fr] = uint32(cursor)
		enc := seenBytes[fr]
		frameBlocks = append(frameBlocks, enc...)
		cursor += len(enc)
	}

	for gi, g := range f.Groups {
		tbl := groupTables[gi]
		offTableStart := GroupHeaderSize + len(g.Frames)*FrameNameSize
		for i, fr := range g.Frames {
			binio.PutLE32(tbl, offTableStart+i*4, absolute[fr])
		}
	}

	for _, t := range groupTables {
		out = append(out, t...)
	}
	out = append(out, frameBlocks...)
	return out
}
