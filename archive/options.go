package archive

// Options describes the fixed-stride directory layout of one archive
// variant: where the name, address and size fields live within each
// directory record, how big a record is, and where the record table and
// payload region begin in the file. Every variant (HeroesLOD, BitmapsLOD,
// SpritesLOD, GamesLOD, ...) builds one of these instead of subclassing a
// directory reader — see the Archive type in variants.go.
type Options struct {
	// NameSize is the width in bytes of the zero-padded ASCII name field.
	NameSize int
	// ItemSize is the stride in bytes of one directory record.
	ItemSize int
	// AddrOffset is the byte offset of the little-endian u32 address
	// field within a record.
	AddrOffset int
	// SizeOffset is the byte offset of the on-disk size field, or -1 if
	// the variant has no single combined size field (it uses Packed/
	// Unpacked instead).
	SizeOffset int
	// UnpackedSizeOffset is the byte offset of the decompressed-size
	// field, or -1 if the variant doesn't store one.
	UnpackedSizeOffset int
	// PackedSizeOffset is the byte offset of the compressed-size field,
	// or -1 if the variant doesn't store one.
	PackedSizeOffset int
	// AddrStart is added to a record's raw address field to obtain the
	// absolute file offset (MM variants store archive-relative
	// addresses; Heroes LOD stores absolute ones with AddrStart == 0).
	AddrStart int64
	// DataStart is the absolute file offset where the directory table
	// itself begins.
	DataStart int64
	// MinFileSize is the minimum size a freshly created archive of this
	// variant must be padded to (Heroes LOD reserves a fixed pad for
	// legacy compatibility).
	MinFileSize int64
}

const noOffset = -1

// heroesOptions returns the directory layout for a Heroes-era LOD ('\xC8LOD').
func heroesOptions(lodSignature bool) Options {
	dataStart := int64(96)
	if lodSignature {
		dataStart = 92
	}
	return Options{
		NameSize:           16,
		ItemSize:           32,
		AddrOffset:         16,
		SizeOffset:         noOffset,
		UnpackedSizeOffset: 20,
		PackedSizeOffset:   28,
		AddrStart:          0,
		DataStart:          dataStart,
		MinFileSize:        320092,
	}
}

// mmOptions returns the directory layout shared by MM6/MM7-era LOD variants
// (Bitmaps/Icons/Sprites/Games/Chapter), keyed off where the archive's own
// data region starts (archiveStart, read from the 288-byte MM header).
func mmOptions(archiveStart int64) Options {
	return Options{
		NameSize:           0x10,
		ItemSize:           0x20,
		AddrOffset:         0x10,
		SizeOffset:         noOffset,
		UnpackedSizeOffset: 0x14,
		PackedSizeOffset:   noOffset,
		AddrStart:          archiveStart,
		DataStart:          archiveStart,
		MinFileSize:        0,
	}
}

// mm8Options returns the wider directory layout used by MM8LOD.
func mm8Options(archiveStart int64) Options {
	return Options{
		NameSize:           0x40,
		ItemSize:           0x4C,
		AddrOffset:         0x40,
		SizeOffset:         noOffset,
		UnpackedSizeOffset: 0x44,
		PackedSizeOffset:   noOffset,
		AddrStart:          archiveStart,
		DataStart:          archiveStart,
		MinFileSize:        0,
	}
}
