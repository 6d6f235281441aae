// Package archive implements the fixed-record directory table shared by
// every LOD-family archive (Heroes LOD, the MM6/7/8 Bitmaps/Icons/Sprites/
// Games/Chapter variants) plus SND, VID and LWD, and the eleven concrete
// variants built on top of it.
//
// The directory engine, Files, is grounded on the source's TRSMMFiles: a
// single random-access file manager offering add/rename/delete/find over a
// fixed-stride record table, in-place mutation when a replacement payload
// fits its old slot, write-on-demand memory buffering, and a defragmenting
// Rebuild. Variant-specific behaviour (record layout, header codec, naming
// conventions) is supplied as an Options value plus a small set of typed
// hooks rather than a subclass hierarchy.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergroj/rslod/internal/binio"
	"github.com/sergroj/rslod/internal/pool"
)

// Files is the directory-table engine. It is not safe for concurrent use by
// multiple goroutines without external synchronization — the source
// models a single active mutator and so does this port.
type Files struct {
	Options Options

	inFile, outFile string
	writeStream     *os.File
	writesCount     int
	blockStream     *os.File
	fileTime        time.Time

	// BlockInFile keeps a read handle open across operations instead of
	// reopening the file for every read.
	BlockInFile bool
	// WriteOnDemand stages Add/Delete/Rename mutations in memory; Save
	// flushes them in one pass.
	WriteOnDemand bool

	data     []byte
	count    int
	fileSize int64

	fileBuffers []*bytes.Buffer

	// Sorted indicates directory records are kept in case-insensitive
	// lexical order, enabling binary search in Find.
	Sorted bool
	// GamesLOD enables the suffix-placement rule: .blv/.odm/.dlv/.ddm
	// entries are kept as a contiguous run at the end of the directory.
	GamesLOD bool

	userData     []byte
	userDataSize int

	// IgnoreUnzipErrors switches RawExtract to the tolerant best-effort
	// inflate path instead of failing on a corrupt deflate stream.
	IgnoreUnzipErrors bool

	// OnReadHeader parses the variant's header from r and returns the
	// directory record count.
	OnReadHeader func(f *Files, r io.ReadSeeker) (count int, err error)
	// OnWriteHeader rewrites the variant's header reflecting the current
	// directory count and file size.
	OnWriteHeader func(f *Files, w io.WriteSeeker) error
	// OnGetFileSize lets a variant override a record's reported size
	// (e.g. VID's trailer-sourced size table).
	OnGetFileSize func(f *Files, i int, size int64) int64
	// OnSetFileSize notifies a variant that a record's size changed.
	OnSetFileSize func(f *Files, i int, size int64)
	// OnBeforeReplaceFile fires before an Add overwrites an existing entry.
	OnBeforeReplaceFile func(f *Files, i int)
	// OnBeforeDeleteFile fires before an entry is removed.
	OnBeforeDeleteFile func(f *Files, i int)
	// OnAfterRenameFile fires after an entry's directory slot has moved
	// to reflect its new name (used to rewrite redundant in-payload names).
	OnAfterRenameFile func(f *Files, i int)
}

// New returns an empty Files ready to have its Options and hooks assigned
// before Load or New is called.
func New() *Files {
	return &Files{Sorted: true}
}

// Count returns the number of directory entries.
func (f *Files) Count() int { return f.count }

// FileName returns the path this archive is currently bound to.
func (f *Files) FileName() string { return f.outFile }

// ArchiveSize returns the current logical size of the backing file.
func (f *Files) ArchiveSize() int64 { return f.fileSize }

func (f *Files) recOffset(i int) int { return i * f.Options.ItemSize }

// GetName returns the ASCII name stored in record i.
func (f *Files) GetName(i int) string {
	off := f.recOffset(i)
	return binio.NulString(f.data[off : off+f.Options.NameSize])
}

// GetAddress returns the absolute file offset of record i's payload.
func (f *Files) GetAddress(i int) int64 {
	if i >= f.count {
		return f.fileSize
	}
	off := f.recOffset(i) + f.Options.AddrOffset
	return int64(binio.ReadLE32(f.data, off)) + f.Options.AddrStart
}

func (f *Files) setAddress(i int, addr int64) {
	off := f.recOffset(i) + f.Options.AddrOffset
	binio.PutLE32(f.data, off, uint32(addr-f.Options.AddrStart))
}

// GetSize returns the on-disk (possibly packed) size of record i.
func (f *Files) GetSize(i int) int64 {
	if i < len(f.fileBuffers) && f.fileBuffers[i] != nil {
		return int64(f.fileBuffers[i].Len())
	}

	var result int64
	if f.Options.SizeOffset < 0 {
		if f.Options.PackedSizeOffset >= 0 {
			result = int64(binio.ReadI32(f.data, f.recOffset(i)+f.Options.PackedSizeOffset))
		}
		if result == 0 && f.Options.UnpackedSizeOffset >= 0 {
			result = int64(binio.ReadI32(f.data, f.recOffset(i)+f.Options.UnpackedSizeOffset))
		}
	} else {
		result = int64(binio.ReadI32(f.data, f.recOffset(i)+f.Options.SizeOffset))
	}

	if f.OnGetFileSize != nil {
		result = f.OnGetFileSize(f, i, result)
	}
	return result
}

// GetUnpackedSize returns the decompressed size of record i, or its on-disk
// size when the variant doesn't track unpacked size separately.
func (f *Files) GetUnpackedSize(i int) int64 {
	if f.Options.UnpackedSizeOffset < 0 {
		return f.GetSize(i)
	}
	return int64(binio.ReadI32(f.data, f.recOffset(i)+f.Options.UnpackedSizeOffset))
}

// GetIsPacked reports whether record i's payload is zlib-compressed.
func (f *Files) GetIsPacked(i int) bool {
	switch {
	case f.Options.PackedSizeOffset >= 0:
		return binio.ReadI32(f.data, f.recOffset(i)+f.Options.PackedSizeOffset) != 0
	case f.Options.SizeOffset >= 0 && f.Options.UnpackedSizeOffset >= 0:
		sz := binio.ReadI32(f.data, f.recOffset(i)+f.Options.SizeOffset)
		unp := binio.ReadI32(f.data, f.recOffset(i)+f.Options.UnpackedSizeOffset)
		return sz != unp
	default:
		return false
	}
}

// GetUserData returns the variant-private metadata slot for record i.
func (f *Files) GetUserData(i int) []byte {
	off := i * f.userDataSize
	return f.userData[off : off+f.userDataSize]
}

// SetUserDataSize resizes the per-entry metadata slot. It must be called
// before any entries are loaded or added.
func (f *Files) SetUserDataSize(n int) {
	if n == f.userDataSize {
		return
	}
	f.userDataSize = n
	f.userData = make([]byte, n*f.count)
}

func (f *Files) checkName(name string) error {
	if len(name) >= f.Options.NameSize {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrNameTooLong, name, f.Options.NameSize-1)
	}
	return nil
}

// compareNames compares two entry names case-insensitively, ASCII-wise.
func compareNames(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// compareWithCount compares a and b case-insensitively and also reports the
// length of their common case-insensitive prefix, used by the unsorted
// linear-scan insertion-hint search.
func compareWithCount(a, b string) (cmp int, commonPrefix int) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	n := len(la)
	if len(lb) < n {
		n = len(lb)
	}
	i := 0
	for i < n && la[i] == lb[i] {
		i++
	}
	return compareNames(a, b), i
}

// Find reports whether name is present and, if not, the index at which it
// would be inserted to preserve directory order (for unsorted directories,
// the insertion hint is the best longest-common-prefix neighbour).
func (f *Files) Find(name string) (found bool, index int) {
	if !f.Sorted {
		return f.findLinear(name)
	}
	return f.findBinSearch(name, 0, f.count-1)
}

func (f *Files) findLinear(name string) (bool, int) {
	bestSame := -1
	best := 0
	bestCmp := 1
	for i := 0; i < f.count; i++ {
		c, same := compareWithCount(name, f.GetName(i))
		if c == 0 {
			return true, i
		}
		if same > bestSame || (same == bestSame && bestCmp > 0) {
			best = i
			if c > 0 {
				best++
			}
			bestSame = same
			bestCmp = c
		}
	}
	return false, best
}

func (f *Files) findBinSearch(name string, lo, hi int) (bool, int) {
	for lo <= hi {
		mid := (lo + hi) / 2
		c := compareNames(name, f.GetName(mid))
		switch {
		case c == 0:
			return true, mid
		case c < 0:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return false, lo
}

// findAddIndex applies the Games-LOD suffix rule on top of Find: .blv/.odm/
// .dlv/.ddm map files are kept as a contiguous run at the end of the
// directory, so a non-map entry is searched for only in the prefix before
// that run, and a map entry is always placed immediately after it.
func (f *Files) findAddIndex(name string) (bool, int) {
	found, index := f.Find(name)
	if found || !f.GamesLOD {
		return found, index
	}
	last := f.count - 1
	for last >= 0 && !isBlvOrOdm(f.GetName(last)) {
		last--
	}
	if last < 0 {
		if isBlvOrOdm(name) {
			return false, f.count
		}
		return false, index
	}
	if isBlvOrOdm(name) {
		return false, last + 1
	}
	first := last
	for first >= 0 && isBlvOrOdm(f.GetName(first)) {
		first--
	}
	return f.findBinSearch(name, 0, first)
}

func isBlvOrOdm(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".blv" || ext == ".odm" || ext == ".dlv" || ext == ".ddm"
}

func (f *Files) calculateFileSize() {
	sz := f.Options.DataStart
	if f.Options.MinFileSize > sz {
		sz = f.Options.MinFileSize
	}
	for i := 0; i < f.count; i++ {
		end := f.GetAddress(i) + f.GetSize(i)
		if end > sz {
			sz = end
		}
	}
	f.fileSize = sz
}

// Load opens filename, reads its header via OnReadHeader, and materializes
// the directory table.
func (f *Files) Load(filename string) error {
	f.Close()
	f.inFile = filename
	f.outFile = filename
	return f.readHeader()
}

// Close flushes pending write-on-demand buffers, releases all resources and
// resets the table to empty.
func (f *Files) Close() error {
	var err error
	if len(f.fileBuffers) > 0 && f.outFile != "" {
		err = f.Save()
	}
	f.fileBuffers = nil
	if f.blockStream != nil {
		if cerr := f.blockStream.Close(); err == nil {
			err = cerr
		}
		f.blockStream = nil
	}
	if f.writeStream != nil {
		f.writeStream.Close()
		f.writeStream = nil
	}
	f.count = 0
	f.data = nil
	f.userData = nil
	f.inFile = ""
	f.outFile = ""
	f.sortedReset()
	return err
}

func (f *Files) sortedReset() { f.Sorted = true }

func (f *Files) readHeader() error {
	stream, err := f.beginRead()
	if err != nil {
		return err
	}
	if f.BlockInFile {
		f.blockStream = stream
	}
	if fi, statErr := os.Stat(f.inFile); statErr == nil {
		f.fileTime = fi.ModTime()
	}

	count, herr := f.OnReadHeader(f, stream)
	if herr != nil {
		f.endRead(stream)
		return herr
	}
	f.count = count
	f.data = make([]byte, f.count*f.Options.ItemSize)
	f.userData = make([]byte, f.count*f.userDataSize)

	if f.count > 0 {
		if _, err := stream.Seek(f.Options.DataStart, io.SeekStart); err != nil {
			f.endRead(stream)
			return err
		}
		if _, err := io.ReadFull(stream, f.data); err != nil {
			f.endRead(stream)
			return fmt.Errorf("%w: directory table: %v", ErrCorrupt, err)
		}
	}
	if err := f.endRead(stream); err != nil {
		return err
	}

	f.calculateFileSize()
	f.Sorted = false
	sorted := true
	for i := 0; i < f.count-1; i++ {
		if compareNames(f.GetName(i), f.GetName(i+1)) > 0 {
			sorted = false
			break
		}
	}
	f.Sorted = sorted
	return nil
}

func (f *Files) beginRead() (*os.File, error) {
	if f.writeStream == nil || f.inFile != f.outFile {
		return os.Open(f.inFile)
	}
	return f.beginWrite()
}

func (f *Files) endRead(stream *os.File) error {
	if stream == nil {
		return nil
	}
	if stream == f.writeStream {
		return f.endWrite()
	}
	if stream != f.blockStream {
		return stream.Close()
	}
	return nil
}

func (f *Files) beginWrite() (*os.File, error) {
	if f.writeStream == nil {
		if f.blockStream != nil && f.inFile == f.outFile {
			f.blockStream.Close()
			f.blockStream = nil
		}
		ws, err := os.OpenFile(f.outFile, os.O_RDWR, 0o644)
		if err != nil {
			return nil, err
		}
		f.writeStream = ws
	}
	if _, err := f.writeStream.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	f.writesCount++
	return f.writeStream, nil
}

func (f *Files) endWrite() error {
	f.writesCount--
	var err error
	if f.writesCount == 0 {
		if f.writeStream != nil {
			err = f.writeStream.Close()
			f.writeStream = nil
		}
		if f.BlockInFile && f.inFile == f.outFile && f.blockStream == nil {
			f.blockStream, _ = f.beginRead()
		}
		if fi, statErr := os.Stat(f.inFile); statErr == nil {
			f.fileTime = fi.ModTime()
		}
	}
	return err
}

// asIsStream is a positioned view over one entry's raw on-disk (or
// buffered) bytes, together with the cleanup its caller must run.
type asIsStream struct {
	r    io.ReadSeeker
	free func() error
}

func (f *Files) getAsIsFileStream(index int, ignoreWrite bool) (*asIsStream, error) {
	if index < len(f.fileBuffers) && f.fileBuffers[index] != nil {
		return &asIsStream{r: bytes.NewReader(f.fileBuffers[index].Bytes()), free: func() error { return nil }}, nil
	}

	stream, err := f.beginRead()
	if err != nil {
		return nil, err
	}
	if _, err := stream.Seek(f.GetAddress(index), io.SeekStart); err != nil {
		f.endRead(stream)
		return nil, err
	}

	if stream == f.writeStream && !ignoreWrite {
		buf := make([]byte, f.GetSize(index))
		if _, err := io.ReadFull(stream, buf); err != nil && err != io.ErrUnexpectedEOF {
			f.endWrite()
			return nil, err
		}
		f.endWrite()
		return &asIsStream{r: bytes.NewReader(buf), free: func() error { return nil }}, nil
	}

	return &asIsStream{r: stream, free: func() error { return f.endRead(stream) }}, nil
}

// RawExtract writes entry index's payload to w, inflating it first if it is
// stored packed. When IgnoreUnzipErrors is set, a corrupt stream yields a
// zero-padded best-effort buffer of the expected unpacked size instead of
// an error.
func (f *Files) RawExtract(index int, w io.Writer) error {
	if index < 0 || index >= f.count {
		return fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	st, err := f.getAsIsFileStream(index, true)
	if err != nil {
		return err
	}
	defer st.free()

	size := f.GetSize(index)
	if !f.GetIsPacked(index) {
		_, err := io.CopyN(w, st.r, size)
		return err
	}

	raw := pool.Get(int(size))
	defer pool.Put(raw)
	if _, err := io.ReadFull(st.r, raw); err != nil {
		return err
	}
	if f.IgnoreUnzipErrors {
		_, err := w.Write(binio.InflateTolerant(raw, int(f.GetUnpackedSize(index))))
		return err
	}
	decoded, err := binio.Inflate(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	_, err = w.Write(decoded)
	return err
}

// CheckFileChanged reports whether the backing file's mtime has changed
// since it was last read or written.
func (f *Files) CheckFileChanged() bool {
	fi, err := os.Stat(f.inFile)
	if err != nil {
		return true
	}
	return !fi.ModTime().Equal(f.fileTime)
}

// canExpand reports whether record index can be overwritten in place with a
// payload of newSize bytes without colliding with its neighbour.
func (f *Files) canExpand(index int, newSize int64) bool {
	addr := f.GetAddress(index)
	sz := f.GetSize(index)
	if newSize <= sz || addr+sz >= f.fileSize {
		return true
	}
	if index+1 < f.count {
		next := f.GetAddress(index + 1)
		return next >= addr && next-addr >= newSize
	}
	for i := 0; i < f.count; i++ {
		other := f.GetAddress(i)
		if other >= addr && other-addr < newSize {
			return false
		}
	}
	return true
}

func (f *Files) insertData(index int) {
	item := f.Options.ItemSize
	f.data = append(f.data, make([]byte, item)...)
	if (index+1)*item <= len(f.data)-item {
		copy(f.data[(index+1)*item:], f.data[index*item:len(f.data)-item])
		for i := 0; i < item; i++ {
			f.data[index*item+i] = 0
		}
	}

	u := f.userDataSize
	if u > 0 {
		f.userData = append(f.userData, make([]byte, u)...)
		if (index+1)*u <= len(f.userData)-u {
			copy(f.userData[(index+1)*u:], f.userData[index*u:len(f.userData)-u])
			for i := 0; i < u; i++ {
				f.userData[index*u+i] = 0
			}
		}
	}
}

func (f *Files) removeData(index int) {
	item := f.Options.ItemSize
	copy(f.data[index*item:], f.data[(index+1)*item:])
	f.data = f.data[:len(f.data)-item]

	u := f.userDataSize
	if u > 0 {
		copy(f.userData[index*u:], f.userData[(index+1)*u:])
		f.userData = f.userData[:len(f.userData)-u]
	}
}

func (f *Files) doWriteFile(index int, r io.Reader, size, addr int64, forceWrite bool) error {
	if f.WriteOnDemand && !forceWrite {
		for len(f.fileBuffers) <= index {
			f.fileBuffers = append(f.fileBuffers, nil)
		}
		buf := &bytes.Buffer{}
		if _, err := io.CopyN(buf, r, size); err != nil {
			return err
		}
		f.fileBuffers[index] = buf
	} else {
		stream, err := f.beginWrite()
		if err != nil {
			return err
		}
		if cur, _ := stream.Seek(0, io.SeekEnd); addr+size > cur {
			if err := stream.Truncate(addr + size); err != nil {
				f.endWrite()
				return err
			}
		}
		if _, err := stream.Seek(addr, io.SeekStart); err != nil {
			f.endWrite()
			return err
		}
		if _, err := io.CopyN(stream, r, size); err != nil {
			f.endWrite()
			return err
		}
		if err := f.endWrite(); err != nil {
			return err
		}
	}

	f.setAddress(index, addr)
	if end := addr + size; end > f.fileSize {
		f.fileSize = end
	}
	return nil
}

func (f *Files) doMoveFile(index int, addr int64) error {
	if index < len(f.fileBuffers) && f.fileBuffers[index] != nil {
		buf := f.fileBuffers[index]
		return f.doWriteFile(index, bytes.NewReader(buf.Bytes()), int64(buf.Len()), addr, false)
	}
	st, err := f.getAsIsFileStream(index, false)
	if err != nil {
		return err
	}
	defer st.free()
	return f.doWriteFile(index, st.r, f.GetSize(index), addr, false)
}

// Add writes size bytes from r into the archive under name. When
// compressionLevel is non-zero and size exceeds 64 bytes, the payload is
// zlib-deflated first and the compressed form kept only if strictly
// smaller; pass unpackedSize >= 0 to store data that is already packed
// (its true decompressed length supplied by the caller).
func (f *Files) Add(name string, r io.Reader, size int64, compressionLevel int, unpackedSize int64) (int, error) {
	if err := f.checkName(name); err != nil {
		return 0, err
	}

	raw := pool.Get(int(size))
	defer pool.Put(raw)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, err
	}

	unpSize := size
	pkSize := int64(0)
	payload := raw

	switch {
	case unpackedSize >= 0:
		unpSize = unpackedSize
		pkSize = size
	case compressionLevel != 0 && size > 64 &&
		(f.Options.PackedSizeOffset >= 0 || f.Options.UnpackedSizeOffset >= 0):
		if packed, ok := binio.Deflate(raw, compressionLevel); ok {
			pkSize = int64(len(packed))
			payload = packed
			size = pkSize
		}
	}

	found, index := f.findAddIndex(name)
	if found && f.OnBeforeReplaceFile != nil {
		f.OnBeforeReplaceFile(f, index)
	}

	if _, err := f.beginWrite(); err != nil {
		return 0, err
	}
	defer f.endWrite()

	if found {
		addr := f.GetAddress(index)
		if !f.canExpand(index, size) {
			addr = f.fileSize
		}
		if err := f.doWriteFile(index, bytes.NewReader(payload), size, addr, false); err != nil {
			return 0, err
		}
		for i := range f.GetUserData(index) {
			f.GetUserData(index)[i] = 0
		}
	} else {
		// The directory table is about to grow by one record; any
		// payload currently sitting inside the new record region must
		// be relocated to the file tail first.
		addr := f.Options.DataStart + int64(f.count+1)*int64(f.Options.ItemSize)
		if addr > f.fileSize {
			f.fileSize = addr
		}
		for i := 0; i < f.count; i++ {
			if f.GetAddress(i) < addr {
				if err := f.doMoveFile(i, f.fileSize); err != nil {
					return 0, err
				}
			}
		}

		f.count++
		f.insertData(index)
		f.fileBuffers = insertBufSlot(f.fileBuffers, index)
		if want := f.Options.DataStart + int64(len(f.data)); want > f.fileSize {
			f.fileSize = want
		}
		if err := f.doWriteFile(index, bytes.NewReader(payload), size, f.fileSize, false); err != nil {
			return 0, err
		}
	}

	off := f.recOffset(index)
	binio.PutNulString(f.data[off:off+f.Options.NameSize], name)
	if f.Options.SizeOffset >= 0 {
		binio.PutI32(f.data, off+f.Options.SizeOffset, int32(size))
	}
	if f.Options.UnpackedSizeOffset >= 0 {
		binio.PutI32(f.data, off+f.Options.UnpackedSizeOffset, int32(unpSize))
	}
	if f.Options.PackedSizeOffset >= 0 {
		binio.PutI32(f.data, off+f.Options.PackedSizeOffset, int32(pkSize))
	}
	if f.OnSetFileSize != nil {
		f.OnSetFileSize(f, index, size)
	}

	if !f.WriteOnDemand {
		if err := f.writeHeaderLocked(); err != nil {
			return 0, err
		}
	}
	return index, nil
}

func insertBufSlot(bufs []*bytes.Buffer, index int) []*bytes.Buffer {
	bufs = append(bufs, nil)
	copy(bufs[index+1:], bufs[index:len(bufs)-1])
	bufs[index] = nil
	return bufs
}

// Delete removes entry index from the directory.
func (f *Files) Delete(index int) error {
	if index < 0 || index >= f.count {
		return fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return f.doDelete(index, false)
}

// DeleteName removes the entry named name, if present.
func (f *Files) DeleteName(name string) error {
	found, idx := f.Find(name)
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return f.doDelete(idx, false)
}

func (f *Files) doDelete(index int, noWrite bool) error {
	if f.OnBeforeDeleteFile != nil {
		f.OnBeforeDeleteFile(f, index)
	}
	f.count--
	f.removeData(index)
	if index < len(f.fileBuffers) {
		f.fileBuffers = append(f.fileBuffers[:index], f.fileBuffers[index+1:]...)
	}
	if !noWrite && !f.WriteOnDemand {
		return f.writeHeader()
	}
	return nil
}

// Rename moves entry index's directory slot to reflect newName, evicting
// any colliding entry first. It returns the entry's new index.
func (f *Files) Rename(index int, newName string) (int, error) {
	if err := f.checkName(newName); err != nil {
		return 0, err
	}
	locked := !f.WriteOnDemand
	if locked {
		if _, err := f.beginWrite(); err != nil {
			return 0, err
		}
		defer f.endWrite()
	}

	if found, collideIdx := f.Find(newName); found {
		if collideIdx == index {
			return index, nil
		}
		if err := f.doDelete(collideIdx, true); err != nil {
			return 0, err
		}
		if collideIdx < index {
			index--
		}
	}

	item := f.Options.ItemSize
	rec := append([]byte(nil), f.data[index*item:(index+1)*item]...)
	var userRec []byte
	if f.userDataSize > 0 {
		userRec = append([]byte(nil), f.GetUserData(index)...)
	}
	var buf *bytes.Buffer
	if index < len(f.fileBuffers) {
		buf = f.fileBuffers[index]
	}

	f.removeData(index)
	if index < len(f.fileBuffers) {
		f.fileBuffers = append(f.fileBuffers[:index], f.fileBuffers[index+1:]...)
	}
	f.count--

	found, result := f.findAddIndex(newName)
	if found {
		return 0, fmt.Errorf("archive: rename invariant violated: %q still present", newName)
	}
	f.count++
	f.insertData(result)
	copy(f.data[result*item:(result+1)*item], rec)
	if f.userDataSize > 0 {
		copy(f.GetUserData(result), userRec)
	}
	if buf != nil {
		f.fileBuffers = insertBufSlot(f.fileBuffers, result)
		f.fileBuffers[result] = buf
	}

	off := f.recOffset(result)
	binio.PutNulString(f.data[off:off+f.Options.NameSize], newName)

	if !f.WriteOnDemand {
		if err := f.writeHeaderLocked(); err != nil {
			return 0, err
		}
	}
	if f.OnAfterRenameFile != nil {
		f.OnAfterRenameFile(f, result)
	}
	return result, nil
}

// Save flushes any pending write-on-demand buffers to disk.
func (f *Files) Save() error {
	if len(f.fileBuffers) == 0 {
		return nil
	}
	return f.doSave()
}

func (f *Files) doSave() error {
	if _, err := f.beginWrite(); err != nil {
		return err
	}
	defer f.endWrite()

	for i, buf := range f.fileBuffers {
		if buf == nil {
			continue
		}
		if err := f.doWriteFile(i, bytes.NewReader(buf.Bytes()), int64(buf.Len()), f.GetAddress(i), true); err != nil {
			return err
		}
	}
	f.fileBuffers = nil
	return f.writeHeaderLocked()
}

// writeHeader acquires the write lock and rewrites the header.
func (f *Files) writeHeader() error {
	if _, err := f.beginWrite(); err != nil {
		return err
	}
	defer f.endWrite()
	return f.writeHeaderLocked()
}

// writeHeaderLocked rewrites the header assuming the write lock is already held.
func (f *Files) writeHeaderLocked() error {
	stream := f.writeStream

	sz := f.Options.DataStart + int64(len(f.data))
	for i := 0; i < f.count; i++ {
		if end := f.GetAddress(i) + f.GetSize(i); end > sz {
			sz = end
		}
	}
	if f.Options.MinFileSize > sz {
		sz = f.Options.MinFileSize
	}
	f.fileSize = sz

	if cur, err := stream.Seek(0, io.SeekEnd); err == nil && cur != sz {
		if err := stream.Truncate(sz); err != nil {
			return err
		}
	}

	if f.OnWriteHeader != nil {
		if err := f.OnWriteHeader(f, stream); err != nil {
			return err
		}
	}
	if f.count == 0 {
		return nil
	}
	if _, err := stream.Seek(f.Options.DataStart, io.SeekStart); err != nil {
		return err
	}
	_, err := stream.Write(f.data)
	return err
}

// New creates a brand-new empty archive at filename.
func (f *Files) New(filename string, opts Options) error {
	f.Close()
	f.Options = opts
	f.inFile = filename
	f.outFile = filename
	nf, err := os.Create(filename)
	if err != nil {
		return err
	}
	nf.Close()
	f.fileSize = opts.DataStart
	if opts.MinFileSize > f.fileSize {
		f.fileSize = opts.MinFileSize
	}
	return f.doSave()
}

// SaveAs writes the archive's current contents to a new file path,
// defragmenting payloads back-to-back in directory order. On failure the
// in-memory directory table is restored to its pre-call state.
func (f *Files) SaveAs(filename string) error {
	if f.writeStream != nil {
		return fmt.Errorf("archive: SaveAs called while a write is already in progress")
	}
	f.outFile = filename
	oldSize := f.fileSize
	f.fileSize = f.Options.DataStart + int64(len(f.data))
	if f.Options.MinFileSize > f.fileSize {
		f.fileSize = f.Options.MinFileSize
	}
	oldData := append([]byte(nil), f.data...)

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	ws, err := os.Create(filename)
	if err != nil {
		return err
	}
	f.writeStream = ws
	f.writesCount++

	ok := false
	writeErr := func() error {
		for i := 0; i < f.count; i++ {
			st, err := f.getAsIsFileStream(i, false)
			if err != nil {
				return err
			}
			err = f.doWriteFile(i, st.r, f.GetSize(i), f.fileSize, true)
			st.free()
			if err != nil {
				return err
			}
		}
		ok = true
		return f.writeHeaderLocked()
	}()

	f.endWrite()
	if !ok {
		f.data = oldData
		f.fileSize = oldSize
		return writeErr
	}

	f.fileBuffers = nil
	if f.blockStream != nil {
		f.blockStream.Close()
		f.blockStream = nil
	}
	f.inFile = f.outFile
	if fi, statErr := os.Stat(f.inFile); statErr == nil {
		f.fileTime = fi.ModTime()
	}
	return nil
}

// Rebuild defragments the archive in place: it writes a fresh contiguous
// copy to a temporary sibling and atomically replaces the original,
// reclaiming space left by orphaned overwritten payloads.
func (f *Files) Rebuild() error {
	name := f.outFile
	tmp := name + ".tmp"
	for fileExists(tmp) {
		tmp = fmt.Sprintf("%s.%03X", name, randomSuffix())
	}

	if err := f.SaveAs(tmp); err != nil {
		if fileExists(tmp) {
			os.Remove(tmp)
		}
		return err
	}
	if fileExists(name) {
		if err := os.Remove(name); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, name); err != nil {
		return err
	}
	f.inFile = name
	f.outFile = name
	if fi, statErr := os.Stat(name); statErr == nil {
		f.fileTime = fi.ModTime()
	}
	if f.BlockInFile {
		f.blockStream, _ = f.beginRead()
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var randSeed uint32 = 0x2545F491

// randomSuffix is a tiny xorshift generator: Rebuild only needs a value
// unlikely to collide with an existing sibling file, not cryptographic
// randomness, and the stdlib's math/rand global source would be an odd
// dependency for a single bounded integer.
func randomSuffix() uint32 {
	randSeed ^= randSeed << 13
	randSeed ^= randSeed >> 17
	randSeed ^= randSeed << 5
	return randSeed & 0xFFF
}

// Merge copies every entry of f into dst via dst.Add, preserving packed/
// unpacked sizes without re-deflating already-compressed payloads.
func (f *Files) Merge(dst *Files) error {
	if _, err := dst.beginWrite(); err != nil {
		return err
	}
	defer dst.endWrite()

	for i := 0; i < f.count; i++ {
		st, err := f.getAsIsFileStream(i, false)
		if err != nil {
			return err
		}
		name := f.GetName(i)
		size := f.GetSize(i)
		var addErr error
		if f.GetIsPacked(i) {
			_, addErr = dst.Add(name, st.r, size, 0, f.GetUnpackedSize(i))
		} else {
			_, addErr = dst.Add(name, st.r, size, 0, -1)
		}
		st.free()
		if addErr != nil {
			return addErr
		}
	}
	return nil
}

// Compare reports whether entry index of f and entry otherIndex of other
// have byte-identical decoded content. It first tries a raw byte compare
// (cheap when both sides are stored with the same compression outcome) and
// falls back to comparing fully inflated content.
func (f *Files) Compare(other *Files, index, otherIndex int) (bool, error) {
	size1, size2 := f.GetSize(index), other.GetSize(otherIndex)
	var unp1, unp2 int64
	if f.GetIsPacked(index) {
		unp1 = f.GetUnpackedSize(index)
	}
	if other.GetIsPacked(otherIndex) {
		unp2 = other.GetUnpackedSize(otherIndex)
	}

	st1, err := f.getAsIsFileStream(index, true)
	if err != nil {
		return false, err
	}
	defer st1.free()
	st2, err := other.getAsIsFileStream(otherIndex, true)
	if err != nil {
		return false, err
	}
	defer st2.free()

	raw1 := make([]byte, size1)
	raw2 := make([]byte, size2)
	io.ReadFull(st1.r, raw1)
	io.ReadFull(st2.r, raw2)
	if size1 == size2 && unp1 == unp2 && bytes.Equal(raw1, raw2) {
		return true, nil
	}
	if unp1 == 0 && unp2 == 0 {
		return false, nil
	}
	a, b := raw1, raw2
	var aerr, berr error
	if unp1 != 0 {
		a, aerr = binio.Inflate(bytes.NewReader(raw1))
	}
	if unp2 != 0 {
		b, berr = binio.Inflate(bytes.NewReader(raw2))
	}
	if aerr != nil || berr != nil {
		if f.IgnoreUnzipErrors || other.IgnoreUnzipErrors {
			return true, nil
		}
		return false, nil
	}
	return bytes.Equal(a, b), nil
}

// ReserveFilesCount grows the archive's logical size to make room for n
// directory records without actually adding entries yet.
func (f *Files) ReserveFilesCount(n int) {
	want := f.Options.DataStart + int64(n*f.Options.ItemSize)
	if want > f.fileSize {
		f.fileSize = want
	}
}

// CloneForProcessing returns a fresh Files sharing this one's Options and
// variant flags but bound to a new, empty backing file — used when
// rewriting an archive type-by-type (e.g. bitmaps.lod defragmentation).
func (f *Files) CloneForProcessing(newFile string, filesCount int) *Files {
	result := New()
	result.Options = f.Options
	result.inFile = newFile
	result.outFile = newFile
	result.userDataSize = f.userDataSize
	result.fileSize = f.Options.DataStart + int64(filesCount)*int64(f.Options.ItemSize)
	if f.Options.MinFileSize > result.fileSize {
		result.fileSize = f.Options.MinFileSize
	}
	result.GamesLOD = f.GamesLOD
	result.Sorted = f.Sorted
	return result
}

// sortSnapshot returns a defensive copy of the current name ordering. No
// code in the package calls it at present.
func (f *Files) sortSnapshot() []string {
	names := make([]string, f.count)
	for i := range names {
		names[i] = f.GetName(i)
	}
	return names
}
