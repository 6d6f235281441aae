package archive

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// testOptions is a minimal 8-byte-header, 32-byte-record layout used to
// exercise Files without pulling in a concrete LOD variant: a 4-byte count
// field, a 4-byte reserved field, then NameSize=16/AddrOffset=16/SizeOffset=20
// records starting at DataStart=8.
func testOptions() Options {
	return Options{
		NameSize:           16,
		ItemSize:           32,
		AddrOffset:         16,
		SizeOffset:         20,
		UnpackedSizeOffset: noOffset,
		PackedSizeOffset:   noOffset,
		AddrStart:          0,
		DataStart:          8,
	}
}

func newTestArchive(t *testing.T, filename string) *Files {
	t.Helper()
	f := New()
	f.Options = testOptions()
	f.OnReadHeader = func(f *Files, r io.ReadSeeker) (int, error) {
		hdr := make([]byte, 8)
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		if _, err := io.ReadFull(r, hdr); err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint32(hdr[0:4])), nil
	}
	f.OnWriteHeader = func(f *Files, w io.WriteSeeker) error {
		hdr := make([]byte, 8)
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.Count()))
		if _, err := w.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := w.Write(hdr)
		return err
	}
	if err := f.New(filename, f.Options); err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func tempArchivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.arc")
}

func TestAddFindRoundTrip(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))

	if _, err := f.Add("alpha.txt", bytes.NewReader([]byte("hello")), 5, 0, -1); err != nil {
		t.Fatalf("Add alpha: %v", err)
	}
	if _, err := f.Add("beta.txt", bytes.NewReader([]byte("world!!")), 7, 0, -1); err != nil {
		t.Fatalf("Add beta: %v", err)
	}

	if f.Count() != 2 {
		t.Fatalf("Count = %d, want 2", f.Count())
	}
	found, idx := f.Find("alpha.txt")
	if !found {
		t.Fatalf("Find(alpha.txt): not found")
	}

	var out bytes.Buffer
	if err := f.RawExtract(idx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("RawExtract = %q, want %q", out.String(), "hello")
	}
}

func TestAddReplaceInPlace(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))

	idx, err := f.Add("x.bin", bytes.NewReader([]byte("0123456789")), 10, 0, -1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	addrBefore := f.GetAddress(idx)

	if _, err := f.Add("x.bin", bytes.NewReader([]byte("short")), 5, 0, -1); err != nil {
		t.Fatalf("Add replace: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after replace", f.Count())
	}
	if f.GetAddress(idx) != addrBefore {
		t.Fatalf("replacement with a smaller payload should stay in place: addr = %d, want %d", f.GetAddress(idx), addrBefore)
	}

	var out bytes.Buffer
	if err := f.RawExtract(idx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "short" {
		t.Fatalf("RawExtract = %q, want %q", out.String(), "short")
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))

	if _, err := f.Add("one.txt", bytes.NewReader([]byte("1")), 1, 0, -1); err != nil {
		t.Fatalf("Add one: %v", err)
	}
	if _, err := f.Add("two.txt", bytes.NewReader([]byte("2")), 1, 0, -1); err != nil {
		t.Fatalf("Add two: %v", err)
	}

	if err := f.DeleteName("one.txt"); err != nil {
		t.Fatalf("DeleteName: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("Count = %d, want 1", f.Count())
	}
	if found, _ := f.Find("one.txt"); found {
		t.Fatalf("one.txt should have been deleted")
	}
	if found, _ := f.Find("two.txt"); !found {
		t.Fatalf("two.txt should still be present")
	}
}

func TestRenamePreservesPayload(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))

	idx, err := f.Add("before.txt", bytes.NewReader([]byte("payload")), 7, 0, -1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	newIdx, err := f.Rename(idx, "after.txt")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if found, _ := f.Find("before.txt"); found {
		t.Fatalf("before.txt should no longer be present")
	}
	found, _ := f.Find("after.txt")
	if !found {
		t.Fatalf("after.txt should be present")
	}

	var out bytes.Buffer
	if err := f.RawExtract(newIdx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "payload" {
		t.Fatalf("RawExtract after rename = %q, want %q", out.String(), "payload")
	}
}

func TestRenameCollisionEvictsExisting(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))

	if _, err := f.Add("a.txt", bytes.NewReader([]byte("AAAA")), 4, 0, -1); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	bIdx, err := f.Add("b.txt", bytes.NewReader([]byte("BBBB")), 4, 0, -1)
	if err != nil {
		t.Fatalf("Add b: %v", err)
	}

	if _, err := f.Rename(bIdx, "a.txt"); err != nil {
		t.Fatalf("Rename onto existing name: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after collision rename", f.Count())
	}

	var out bytes.Buffer
	found, idx := f.Find("a.txt")
	if !found {
		t.Fatalf("a.txt should be present")
	}
	if err := f.RawExtract(idx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "BBBB" {
		t.Fatalf("surviving entry should carry b.txt's payload, got %q", out.String())
	}
}

func TestSaveAsDefragments(t *testing.T) {
	path := tempArchivePath(t)
	f := newTestArchive(t, path)

	if _, err := f.Add("a.txt", bytes.NewReader([]byte("aaaa")), 4, 0, -1); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if _, err := f.Add("b.txt", bytes.NewReader([]byte("bbbb")), 4, 0, -1); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if err := f.DeleteName("a.txt"); err != nil {
		t.Fatalf("DeleteName: %v", err)
	}

	dst := filepath.Join(filepath.Dir(path), "defragged.arc")
	if err := f.SaveAs(dst); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	reopened := New()
	reopened.Options = testOptions()
	reopened.OnReadHeader = f.OnReadHeader
	reopened.OnWriteHeader = f.OnWriteHeader
	if err := reopened.Load(dst); err != nil {
		t.Fatalf("Load defragged: %v", err)
	}
	if reopened.Count() != 1 {
		t.Fatalf("Count = %d, want 1", reopened.Count())
	}
	found, idx := reopened.Find("b.txt")
	if !found {
		t.Fatalf("b.txt missing from defragged archive")
	}
	var out bytes.Buffer
	if err := reopened.RawExtract(idx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "bbbb" {
		t.Fatalf("RawExtract = %q, want %q", out.String(), "bbbb")
	}
}

func TestRebuildAtomicSwap(t *testing.T) {
	path := tempArchivePath(t)
	f := newTestArchive(t, path)

	if _, err := f.Add("keep.txt", bytes.NewReader([]byte("keepme")), 6, 0, -1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := f.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if f.FileName() != path {
		t.Fatalf("FileName after Rebuild = %q, want %q", f.FileName(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("rebuilt file missing: %v", err)
	}

	found, idx := f.Find("keep.txt")
	if !found {
		t.Fatalf("keep.txt missing after Rebuild")
	}
	var out bytes.Buffer
	if err := f.RawExtract(idx, &out); err != nil {
		t.Fatalf("RawExtract: %v", err)
	}
	if out.String() != "keepme" {
		t.Fatalf("RawExtract = %q, want %q", out.String(), "keepme")
	}
}

func TestMergeCopiesAllEntries(t *testing.T) {
	src := newTestArchive(t, tempArchivePath(t))
	dst := newTestArchive(t, tempArchivePath(t))

	if _, err := src.Add("one.txt", bytes.NewReader([]byte("1111")), 4, 0, -1); err != nil {
		t.Fatalf("Add one: %v", err)
	}
	if _, err := src.Add("two.txt", bytes.NewReader([]byte("22222")), 5, 0, -1); err != nil {
		t.Fatalf("Add two: %v", err)
	}

	if err := src.Merge(dst); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if dst.Count() != 2 {
		t.Fatalf("dst.Count() = %d, want 2", dst.Count())
	}
	for _, name := range []string{"one.txt", "two.txt"} {
		if found, _ := dst.Find(name); !found {
			t.Fatalf("dst missing %q after Merge", name)
		}
	}
}

func TestCompareIdenticalAndDifferentPayloads(t *testing.T) {
	a := newTestArchive(t, tempArchivePath(t))
	b := newTestArchive(t, tempArchivePath(t))

	aIdx, err := a.Add("f.txt", bytes.NewReader([]byte("same")), 4, 0, -1)
	if err != nil {
		t.Fatalf("Add a: %v", err)
	}
	bIdx, err := b.Add("f.txt", bytes.NewReader([]byte("same")), 4, 0, -1)
	if err != nil {
		t.Fatalf("Add b: %v", err)
	}
	equal, err := a.Compare(b, aIdx, bIdx)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !equal {
		t.Fatalf("expected identical payloads to compare equal")
	}

	cIdx, err := b.Add("g.txt", bytes.NewReader([]byte("diff")), 4, 0, -1)
	if err != nil {
		t.Fatalf("Add g: %v", err)
	}
	differ, err := a.Compare(b, aIdx, cIdx)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if differ {
		t.Fatalf("expected different payloads to compare unequal")
	}
}

func TestWriteOnDemandBuffersUntilSave(t *testing.T) {
	path := tempArchivePath(t)
	f := newTestArchive(t, path)
	f.WriteOnDemand = true

	if _, err := f.Add("a.txt", bytes.NewReader([]byte("aaaa")), 4, 0, -1); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened := New()
	reopened.Options = testOptions()
	reopened.OnReadHeader = f.OnReadHeader
	reopened.OnWriteHeader = f.OnWriteHeader
	if err := reopened.Load(path); err != nil {
		t.Fatalf("Load before Save: %v", err)
	}
	if reopened.Count() != 0 {
		t.Fatalf("Count before Save = %d, want 0 (write-on-demand should not have flushed yet)", reopened.Count())
	}

	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened2 := New()
	reopened2.Options = testOptions()
	reopened2.OnReadHeader = f.OnReadHeader
	reopened2.OnWriteHeader = f.OnWriteHeader
	if err := reopened2.Load(path); err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if reopened2.Count() != 1 {
		t.Fatalf("Count after Save = %d, want 1", reopened2.Count())
	}
}

func TestFindOnSortedDirectory(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))
	names := []string{"banana.txt", "apple.txt", "cherry.txt"}
	for _, n := range names {
		if _, err := f.Add(n, bytes.NewReader([]byte("x")), 1, 0, -1); err != nil {
			t.Fatalf("Add %s: %v", n, err)
		}
	}
	if !f.Sorted {
		t.Fatalf("directory should remain sorted after binary-search insertion")
	}
	for _, n := range names {
		if found, _ := f.Find(n); !found {
			t.Fatalf("Find(%s): not found", n)
		}
	}
	if found, _ := f.Find("missing.txt"); found {
		t.Fatalf("Find(missing.txt): unexpectedly found")
	}
}

func TestNameTooLongRejected(t *testing.T) {
	f := newTestArchive(t, tempArchivePath(t))
	longName := "this-name-is-too-long-for-16-bytes.txt"
	if _, err := f.Add(longName, bytes.NewReader([]byte("x")), 1, 0, -1); err == nil {
		t.Fatalf("expected Add with an over-length name to fail")
	}
}
