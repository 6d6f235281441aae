package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergroj/rslod/internal/binio"
)

// Variant identifies one of the eleven concrete archive flavours this
// library understands.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantHeroesLOD
	VariantBitmapsLOD
	VariantIconsLOD
	VariantSpritesLOD
	VariantGamesLOD
	VariantGamesLOD7
	VariantChapterLOD
	VariantChapterLOD7
	VariantMM8LOD
	VariantSND
	VariantVID
	VariantLWD
)

func (v Variant) String() string {
	switch v {
	case VariantHeroesLOD:
		return "HeroesLOD"
	case VariantBitmapsLOD:
		return "BitmapsLOD"
	case VariantIconsLOD:
		return "IconsLOD"
	case VariantSpritesLOD:
		return "SpritesLOD"
	case VariantGamesLOD:
		return "GamesLOD"
	case VariantGamesLOD7:
		return "GamesLOD7"
	case VariantChapterLOD:
		return "ChapterLOD"
	case VariantChapterLOD7:
		return "ChapterLOD7"
	case VariantMM8LOD:
		return "MM8LOD"
	case VariantSND:
		return "SND"
	case VariantVID:
		return "VID"
	case VariantLWD:
		return "LWD"
	default:
		return "Unknown"
	}
}

var gamesLOD7Sig = []byte{
	0x0D, 0x00, 0x00, 0x00, 0x56, 0x49, 0x44, 0x5F,
	0x53, 0x49, 0x5A, 0x45, 0x5F, 0x53, 0x49, 0x47,
}

// lodTypes maps the 16-byte "lod type" string embedded at offset 256 of an
// MM-style LOD header to the variant it designates.
var lodTypes = map[string]Variant{
	"bitmaps":  VariantBitmapsLOD,
	"icons":    VariantIconsLOD,
	"sprites":  VariantSpritesLOD,
	"games":    VariantGamesLOD,
	"chapter":  VariantChapterLOD,
}

// Archive wraps a Files directory table with the header codec and naming
// convention of one concrete variant.
type Archive struct {
	*Files
	Variant Variant

	// mmVersion / mmDescription / archiveStart / archiveSize mirror the
	// 288-byte MM LOD header; zero for HeroesLOD and the container
	// formats (SND/VID/LWD).
	mmVersion     string
	mmDescription string
	archiveStart  int64
	archiveSize   int64

	// vidSizes/vidNoExt hold the VID trailer's side size table; without a
	// trailer, OnGetFileSize computes sizes from adjacent offsets instead.
	vidSizes []int64
	vidNoExt bool
}

// Open detects a variant from filename's header and returns a bound Archive.
func Open(filename string) (*Archive, error) {
	probe, err := sniffHeader(filename)
	if err != nil {
		return nil, err
	}

	a := &Archive{Files: New()}
	a.Variant = probe.variant
	a.mmVersion = probe.version
	a.mmDescription = probe.description
	a.archiveStart = probe.archiveStart
	a.archiveSize = probe.archiveSize

	switch probe.variant {
	case VariantHeroesLOD:
		a.Options = heroesOptions(probe.lodSignature)
	case VariantMM8LOD:
		a.Options = mm8Options(probe.archiveStart)
	case VariantGamesLOD, VariantGamesLOD7:
		a.Options = mmOptions(probe.archiveStart)
		a.GamesLOD = true
	default:
		a.Options = mmOptions(probe.archiveStart)
	}

	a.wireHooks()
	if err := a.Files.Load(filename); err != nil {
		return nil, err
	}
	if a.Variant == VariantGamesLOD && a.hasGamesLOD7Trailer() {
		a.Variant = VariantGamesLOD7
	}
	return a, nil
}

// lodVersionStrings and lodDescriptions mirror LOD_TYPES/LOD_DESCRIPTIONS:
// the default 80-byte version string and 80-byte description embedded in a
// freshly created MM-style archive's header, keyed by variant.
var lodVersionStrings = map[Variant]string{
	VariantBitmapsLOD:  "MMVI",
	VariantIconsLOD:    "MMVI",
	VariantSpritesLOD:  "MMVI",
	VariantGamesLOD:    "GameMMVI",
	VariantGamesLOD7:   "GameMMVI",
	VariantChapterLOD:  "MMVI",
	VariantChapterLOD7: "MMVII",
	VariantMM8LOD:      "MMVIII",
}

var lodDescriptions = map[Variant]string{
	VariantBitmapsLOD:  "Bitmaps for MMVI.",
	VariantIconsLOD:    "Icons for MMVI.",
	VariantSpritesLOD:  "Sprites for MMVI.",
	VariantGamesLOD:    "Maps for MMVI",
	VariantGamesLOD7:   "Maps for MMVI",
	VariantChapterLOD:  "newmaps for MMVI",
	VariantChapterLOD7: "newmaps for MMVII",
	VariantMM8LOD:      "Language for MMVIII.",
}

// NewArchive creates a brand-new, empty archive of the given variant at
// filename. HeroesLOD needs no version/description header fields; the
// MM-style variants get the same defaults the source stamps on creation.
func NewArchive(filename string, variant Variant) (*Archive, error) {
	a := &Archive{Files: New()}
	a.Variant = variant

	switch variant {
	case VariantHeroesLOD:
		a.Options = heroesOptions(true)
	case VariantMM8LOD:
		a.Options = mm8Options(288)
		a.archiveStart = 288
	case VariantGamesLOD, VariantGamesLOD7:
		a.Options = mmOptions(288)
		a.archiveStart = 288
		a.GamesLOD = true
	default:
		a.Options = mmOptions(288)
		a.archiveStart = 288
	}
	a.mmVersion = lodVersionStrings[variant]
	a.mmDescription = lodDescriptions[variant]

	a.wireHooks()
	if err := a.Files.New(filename, a.Options); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) wireHooks() {
	a.OnReadHeader = func(f *Files, r io.ReadSeeker) (int, error) {
		return a.readHeaderBody(r)
	}
	a.OnWriteHeader = func(f *Files, w io.WriteSeeker) error {
		return a.writeHeaderBody(w)
	}
	if isRedundantNameVariant(a.Variant) {
		a.OnAfterRenameFile = func(f *Files, i int) {
			a.rewriteEmbeddedName(i)
		}
	}
}

func isRedundantNameVariant(v Variant) bool {
	switch v {
	case VariantBitmapsLOD, VariantIconsLOD, VariantMM8LOD, VariantSpritesLOD:
		return true
	}
	return false
}

// rewriteEmbeddedName patches the redundant name field stored at the start
// of a bitmap/icon/sprite/MM8 payload after a Rename. Under WriteOnDemand
// the patched payload is buffered and written out by the next Save.
func (a *Archive) rewriteEmbeddedName(i int) {
	size := a.GetSize(i)
	nameWidth := int64(a.Options.NameSize)
	if size < nameWidth {
		return
	}
	st, err := a.getAsIsFileStream(i, false)
	if err != nil {
		return
	}
	payload := make([]byte, size)
	_, err = io.ReadFull(st.r, payload)
	st.free()
	if err != nil {
		return
	}
	binio.PutNulString(payload[:nameWidth], a.GetName(i))
	a.doWriteFile(i, bytes.NewReader(payload), size, a.GetAddress(i), false)
}

type headerProbe struct {
	variant       Variant
	lodSignature  bool
	version       string
	description   string
	archiveStart  int64
	archiveSize   int64
}

func sniffHeader(filename string) (headerProbe, error) {
	r, err := os.Open(filename)
	if err != nil {
		return headerProbe{}, err
	}
	defer r.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return headerProbe{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if magic[0] == 0xC8 && string(magic[1:]) == "LOD" {
		return headerProbe{variant: VariantHeroesLOD, lodSignature: true}, nil
	}
	if string(magic) == "LOD\x00" {
		verCount := make([]byte, 8)
		if _, err := io.ReadFull(r, verCount); err != nil {
			return headerProbe{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		version := binary.LittleEndian.Uint32(verCount[0:4])
		count := binary.LittleEndian.Uint32(verCount[4:8])
		if looksLikeSimpleLOD(version, count) {
			return headerProbe{variant: VariantHeroesLOD, lodSignature: false}, nil
		}
		return sniffMMHeader(r, verCount)
	}

	return headerProbe{}, fmt.Errorf("%w: unrecognized signature", ErrCorrupt)
}

// looksLikeSimpleLOD implements the exact version/count heuristic from the
// original reader, including the HotA.lod edge case where version and count
// are both large and nearly equal.
func looksLikeSimpleLOD(version, count uint32) bool {
	if version < 1000 && count < 10000 {
		return true
	}
	diff := int64(version) - int64(count)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1 && count > 1000
}

func sniffMMHeader(afterMagicAndVersion io.Reader, verCount []byte) (headerProbe, error) {
	rest := make([]byte, 288-12)
	if _, err := io.ReadFull(afterMagicAndVersion, rest); err != nil {
		return headerProbe{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	full := make([]byte, 12+len(rest))
	copy(full[4:12], verCount)
	copy(full[12:], rest)

	version := binio.NulString(full[4:84])
	description := binio.NulString(full[84:164])
	lodType := strings.ToLower(binio.NulString(full[256:272]))
	archiveStart := int64(binary.LittleEndian.Uint32(full[272:276]))
	archiveSize := int64(binary.LittleEndian.Uint32(full[276:280]))

	variant, ok := lodTypes[lodType]
	if !ok {
		return headerProbe{}, fmt.Errorf("%w: lod type %q", ErrUnknownVariant, lodType)
	}
	if variant == VariantBitmapsLOD && description == "Language for MMVIII." {
		variant = VariantMM8LOD
	}
	if variant == VariantChapterLOD && version == "MMVII" {
		variant = VariantChapterLOD7
	}
	return headerProbe{
		variant:      variant,
		version:      version,
		description:  description,
		archiveStart: archiveStart,
		archiveSize:  archiveSize,
	}, nil
}

// readHeaderBody parses r (already positioned at offset 0) per a.Variant
// and returns the directory entry count.
func (a *Archive) readHeaderBody(r io.ReadSeeker) (int, error) {
	switch a.Variant {
	case VariantHeroesLOD:
		return a.readHeroesHeader(r)
	default:
		return a.readMMHeader(r)
	}
}

func (a *Archive) readHeroesHeader(r io.ReadSeeker) (int, error) {
	hdr := make([]byte, 92)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	count := int(binary.LittleEndian.Uint32(hdr[8:12]))
	return count, nil
}

func (a *Archive) readMMHeader(r io.ReadSeeker) (int, error) {
	hdr := make([]byte, 288)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	count := int(binary.LittleEndian.Uint16(hdr[282:284]))
	return count, nil
}

func (a *Archive) writeHeaderBody(w io.WriteSeeker) error {
	switch a.Variant {
	case VariantHeroesLOD:
		return a.writeHeroesHeader(w)
	default:
		return a.writeMMHeader(w)
	}
}

func (a *Archive) writeHeroesHeader(w io.WriteSeeker) error {
	hdr := make([]byte, 92)
	hdr[0] = 0xC8
	copy(hdr[1:4], "LOD")
	binary.LittleEndian.PutUint32(hdr[4:8], 1000)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(a.Count()))
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := w.Write(hdr)
	return err
}

func (a *Archive) writeMMHeader(w io.WriteSeeker) error {
	hdr := make([]byte, 288)
	copy(hdr[0:4], "LOD\x00")
	binio.PutNulString(hdr[4:84], a.mmVersion)
	binio.PutNulString(hdr[84:164], a.mmDescription)
	binio.PutNulString(hdr[256:272], strings.ToLower(variantLodType(a.Variant)))
	binary.LittleEndian.PutUint32(hdr[272:276], uint32(a.archiveStart))
	binary.LittleEndian.PutUint32(hdr[276:280], uint32(a.ArchiveSize()-a.archiveStart))
	binary.LittleEndian.PutUint16(hdr[282:284], uint16(a.Count()))
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if a.Variant == VariantGamesLOD7 {
		if _, err := w.Seek(a.ArchiveSize(), io.SeekStart); err != nil {
			return err
		}
		if _, err := w.Write(gamesLOD7Sig); err != nil {
			return err
		}
	}
	return nil
}

func variantLodType(v Variant) string {
	switch v {
	case VariantBitmapsLOD, VariantMM8LOD:
		return "bitmaps"
	case VariantIconsLOD:
		return "icons"
	case VariantSpritesLOD:
		return "sprites"
	case VariantGamesLOD, VariantGamesLOD7:
		return "games"
	case VariantChapterLOD, VariantChapterLOD7:
		return "chapter"
	default:
		return ""
	}
}

// hasGamesLOD7Trailer reports whether the file ends with the 16-byte
// GamesLOD7 signature, or a .blv/.odm entry starts with the GamesLOD7 map
// header pair.
func (a *Archive) hasGamesLOD7Trailer() bool {
	if r, err := os.Open(a.FileName()); err == nil {
		end, serr := r.Seek(0, io.SeekEnd)
		found := serr == nil && end >= 16 && sigAt(r, end-16, gamesLOD7Sig)
		r.Close()
		if found {
			return true
		}
	}
	for i := 0; i < a.Count(); i++ {
		name := a.GetName(i)
		if !isBlvOrOdm(name) {
			continue
		}
		st, err := a.getAsIsFileStream(i, true)
		if err != nil {
			continue
		}
		head := make([]byte, 8)
		n, _ := io.ReadFull(st.r, head)
		st.free()
		if n == 8 && binary.LittleEndian.Uint32(head[0:4]) == 0x00016741 &&
			binary.LittleEndian.Uint32(head[4:8]) == 0x6969766D {
			return true
		}
	}
	return false
}

// ExtractName maps a stored directory name to the on-disk filename a caller
// would save it under, appending the variant's conventional extension.
func (a *Archive) ExtractName(index int) string {
	name := a.GetName(index)
	if filepath.Ext(name) != "" {
		return name
	}
	switch a.Variant {
	case VariantBitmapsLOD, VariantIconsLOD, VariantMM8LOD:
		if strings.HasPrefix(strings.ToLower(name), "pal") {
			return name + ".act"
		}
		return name + ".bmp"
	case VariantSpritesLOD:
		return name + ".bmp"
	case VariantSND:
		return name + ".wav"
	case VariantVID:
		if a.vidNoExt {
			return name
		}
		return name + ".smk"
	default:
		return name + ".mmrawdata"
	}
}

// NeedBitmapsLOD resolves (opening if necessary) the companion BitmapsLOD
// used to look up palette ids for sprite/bitmap extraction, per the
// auto-discovery rule: bitmaps.lod next to this archive, or any sibling
// matching *.bitmaps.lod (the first match wins). The lookup has no override
// hook; a caller with a known companion path can call Open on it directly.
func (a *Archive) NeedBitmapsLOD() (*Archive, error) {
	dir := filepath.Dir(a.FileName())
	candidate := filepath.Join(dir, "bitmaps.lod")
	if fileExists(candidate) {
		return Open(candidate)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.bitmaps.lod"))
	if len(matches) > 0 {
		return Open(matches[0])
	}
	return nil, fmt.Errorf("archive: no companion bitmaps.lod found next to %q", a.FileName())
}
