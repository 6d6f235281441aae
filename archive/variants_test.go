package archive

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestLooksLikeSimpleLOD(t *testing.T) {
	cases := []struct {
		name            string
		version, count  uint32
		wantSimpleHeroes bool
	}{
		{"small version and count", 5, 10, true},
		{"large version, small count", 5000, 5, false},
		{"HotA near-equal edge case", 12345, 12344, true},
		{"large version and count, not close", 50000, 10, false},
		{"large count alone is not enough", 5, 20000, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := looksLikeSimpleLOD(c.version, c.count); got != c.wantSimpleHeroes {
				t.Errorf("looksLikeSimpleLOD(%d, %d) = %v, want %v", c.version, c.count, got, c.wantSimpleHeroes)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
	return path
}

func TestOpenDetectsOldHeroesLOD(t *testing.T) {
	dir := t.TempDir()
	hdr := make([]byte, 92)
	hdr[0] = 0xC8
	copy(hdr[1:4], "LOD")
	binary.LittleEndian.PutUint32(hdr[4:8], 1000)
	binary.LittleEndian.PutUint32(hdr[8:12], 0)
	path := writeFile(t, dir, "game.lod", hdr)

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.Variant != VariantHeroesLOD {
		t.Fatalf("Variant = %v, want HeroesLOD", a.Variant)
	}
	if a.Count() != 0 {
		t.Fatalf("Count = %d, want 0", a.Count())
	}
}

func buildMMHeader(lodType, version, description string, archiveStart, archiveSize uint32, count uint16) []byte {
	hdr := make([]byte, 288)
	copy(hdr[0:4], "LOD\x00")
	copy(hdr[4:4+len(version)], version)
	copy(hdr[84:84+len(description)], description)
	copy(hdr[256:256+len(lodType)], lodType)
	binary.LittleEndian.PutUint32(hdr[272:276], archiveStart)
	binary.LittleEndian.PutUint32(hdr[276:280], archiveSize)
	binary.LittleEndian.PutUint16(hdr[282:284], count)
	return hdr
}

func TestOpenDetectsMMBitmapsLOD(t *testing.T) {
	dir := t.TempDir()
	hdr := buildMMHeader("bitmaps", "MMVI", "Bitmaps for MMVI.", 288, 0, 0)
	path := writeFile(t, dir, "bitmaps.lod", hdr)

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.Variant != VariantBitmapsLOD {
		t.Fatalf("Variant = %v, want BitmapsLOD", a.Variant)
	}
	if a.mmVersion != "MMVI" {
		t.Fatalf("mmVersion = %q, want %q (regression: version string offsets 4..12 must survive sniffing)", a.mmVersion, "MMVI")
	}
}

func TestOpenDetectsMM8LODViaDescription(t *testing.T) {
	dir := t.TempDir()
	hdr := buildMMHeader("bitmaps", "MMVIII", "Language for MMVIII.", 288, 0, 0)
	path := writeFile(t, dir, "lang.lod", hdr)

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.Variant != VariantMM8LOD {
		t.Fatalf("Variant = %v, want MM8LOD", a.Variant)
	}
}

func TestOpenDetectsChapterLOD7ViaVersionString(t *testing.T) {
	dir := t.TempDir()
	hdrOld := buildMMHeader("chapter", "MMVI", "newmaps for MMVI", 288, 0, 0)
	pathOld := writeFile(t, dir, "chapter_old.lod", hdrOld)
	aOld, err := Open(pathOld)
	if err != nil {
		t.Fatalf("Open old: %v", err)
	}
	if aOld.Variant != VariantChapterLOD {
		t.Fatalf("Variant = %v, want ChapterLOD", aOld.Variant)
	}

	hdrNew := buildMMHeader("chapter", "MMVII", "newmaps for MMVII", 288, 0, 0)
	pathNew := writeFile(t, dir, "chapter_new.lod", hdrNew)
	aNew, err := Open(pathNew)
	if err != nil {
		t.Fatalf("Open new: %v", err)
	}
	if aNew.Variant != VariantChapterLOD7 {
		t.Fatalf("Variant = %v, want ChapterLOD7", aNew.Variant)
	}
}

func TestOpenRejectsUnknownMagic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "junk.bin", []byte("NOPE"))
	if _, err := Open(path); err == nil {
		t.Fatalf("expected Open to fail on an unrecognized magic")
	}
}

func TestExtractNameAppendsConventionalExtension(t *testing.T) {
	a := &Archive{Files: New()}
	a.Variant = VariantBitmapsLOD
	a.Options = mmOptions(288)
	a.Files.data = make([]byte, a.Options.ItemSize*2)
	setRecordName(a.Files, 0, "pal0")
	setRecordName(a.Files, 1, "splash")
	a.Files.count = 2

	if got := a.ExtractName(0); got != "pal0.act" {
		t.Errorf("ExtractName(pal0) = %q, want %q", got, "pal0.act")
	}
	if got := a.ExtractName(1); got != "splash.bmp" {
		t.Errorf("ExtractName(splash) = %q, want %q", got, "splash.bmp")
	}
}

func setRecordName(f *Files, index int, name string) {
	off := index * f.Options.ItemSize
	copy(f.data[off:off+len(name)], name)
}

func TestNewArchiveCreatesLoadableArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.lod")
	a, err := NewArchive(path, VariantGamesLOD)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	if a.Count() != 0 {
		t.Fatalf("Count = %d, want 0", a.Count())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open freshly created archive: %v", err)
	}
	if reopened.Variant != VariantGamesLOD {
		t.Fatalf("Variant = %v, want GamesLOD", reopened.Variant)
	}
	if reopened.mmVersion != "GameMMVI" {
		t.Fatalf("mmVersion = %q, want %q", reopened.mmVersion, "GameMMVI")
	}
}
