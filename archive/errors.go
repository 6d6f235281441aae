package archive

import "errors"

// Sentinel errors returned (wrapped with fmt.Errorf("%w", ...) for context)
// by the directory table and archive variants.
var (
	// ErrCorrupt is returned when a header, directory, or trailer fails
	// basic structural validation: bad signature, short read, or a
	// directory that overflows the file.
	ErrCorrupt = errors.New("archive: file invalid or corrupt")

	// ErrUnknownVariant is returned when an MM-style LOD header's version
	// and lod-type strings don't match any known variant.
	ErrUnknownVariant = errors.New("archive: unrecognized LOD variant")

	// ErrNameTooLong is returned by Add/Rename when name does not fit in
	// the variant's name width (minus the terminating NUL).
	ErrNameTooLong = errors.New("archive: entry name too long for this variant")

	// ErrFormatConstraint names a violation of a variant-specific content
	// rule (a non-bitmap payload in a SpritesLOD, a palette blob that isn't
	// exactly 768 bytes, and similar). No function in this package returns
	// it: Add stores payloads without checking their content.
	ErrFormatConstraint = errors.New("archive: entry violates format constraint")

	// ErrPaletteIDOverflow names the case where no free id remains in any
	// of the three reserved palette-id bands (1..999, 1000..9999,
	// 10000..32767). No function in this package returns it;
	// palette.Registry.Allocate reports that case as palette.ErrOverflow.
	ErrPaletteIDOverflow = errors.New("archive: no free palette id remains")

	// ErrNotFound is returned by Delete and RawExtract for an index outside
	// the directory, and by DeleteName for a name that isn't present.
	ErrNotFound = errors.New("archive: entry not found")

	// ErrClosed is not returned by any function in this package: Close
	// resets a Files to an empty, unbound table rather than marking it
	// closed.
	ErrClosed = errors.New("archive: archive is closed")
)
