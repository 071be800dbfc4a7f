package fat

import (
	"errors"
	"io"
	"log/slog"
)

// OpenFlag selects the access mode and open disposition of OpenFile.
type OpenFlag uint8

const (
	FlagRead   OpenFlag = 1 << 0 // open for reading.
	FlagWrite  OpenFlag = 1 << 1 // open for writing.
	FlagRW     OpenFlag = FlagRead | FlagWrite
	FlagCreate OpenFlag = 1 << 2 // create the file if it does not exist.
	FlagTrunc  OpenFlag = 1 << 3 // reset size to 0 on open.
	FlagAppend OpenFlag = 1 << 4 // initial offset at end of file.
	FlagExcl   OpenFlag = 1 << 5 // accepted, behaviourally inert.
	FlagBinary OpenFlag = 1 << 6 // accepted, behaviourally inert.
	FlagText   OpenFlag = 1 << 7 // accepted, behaviourally inert.
)

// File is an open handle on a regular file. It borrows from its FS: the
// volume cannot be unmounted until the handle is closed. A File tracks one
// link of its chain and that link's index, and advances it before each
// chunk, so sequential I/O follows the chain one link at a time. At an
// offset on a cluster boundary the handle still rests on the previous link.
type File struct {
	fs         *FS
	flag       OpenFlag
	offset     int64  // current byte offset within the file.
	size       uint32 // cached file size.
	start      uint32 // first cluster of the file, 0 for an empty chain.
	cluster    uint32 // current chain link; holds clusterIdx*bpc..+bpc-1.
	clusterIdx int64  // index of cluster within the chain, 0 for start.
	deSector   lba    // sector of the short directory entry.
	deOffset   uint16 // offset of the short directory entry in its sector.
}

// advanceTo follows the cluster chain until cluster is the target'th link.
// With alloc set the chain is extended cluster by cluster once it ends;
// without it, reaching end of chain reports ok=false and leaves the handle
// on the last link.
func (fp *File) advanceTo(target int64, alloc bool) (ok bool, err error) {
	fsys := fp.fs
	for fp.clusterIdx < target {
		next, err := fsys.entryGetChecked(fp.cluster)
		if err != nil {
			return false, err
		}
		if isEOC(next) {
			if !alloc {
				return false, nil
			}
			next, err = fsys.allocateClusters(fp.cluster, 1)
			if err != nil {
				return false, err
			}
		}
		fp.cluster = next
		fp.clusterIdx++
	}
	return true, nil
}

// OpenFile opens the file at path into fp. With FlagCreate a missing file is
// created in its (existing) parent directory with one cluster allocated and
// a fixed 1980-01-01 timestamp; long filenames are matched on lookup but
// never generated on create.
func (fsys *FS) OpenFile(fp *File, path string, flag OpenFlag) error {
	fsys.trace("fs:open", slog.String("path", path), slog.Uint64("flag", uint64(flag)))
	if !fsys.mounted() {
		return ErrNotMounted
	}
	if fp == nil || flag&FlagRW == 0 {
		return ErrInvalidArg
	}
	if flag&FlagWrite != 0 && fsys.mode&ModeWrite == 0 {
		return ErrDenied
	}
	var ff findResult
	found, err := fsys.searchPath(path, &ff)
	if err != nil {
		return err
	}
	if found {
		if ff.isDir {
			return ErrIsDirectory
		}
		fp.fs = fsys
		fp.flag = flag
		fp.start = ff.cluster
		fp.cluster = ff.cluster
		fp.clusterIdx = 0
		fp.size = ff.size
		fp.offset = 0
		fp.deSector = ff.deSector
		fp.deOffset = ff.deOffset
		if flag&FlagTrunc != 0 && flag&FlagWrite != 0 {
			fp.size = 0
			if err := fp.sizeSet(); err != nil {
				fp.fs = nil
				return err
			}
		}
		if flag&FlagAppend != 0 && fp.size > 0 {
			if _, err := fp.Seek(int64(fp.size), io.SeekStart); err != nil {
				fp.fs = nil
				return err
			}
		}
		fsys.nopen++
		return nil
	}
	if flag&FlagCreate == 0 || flag&FlagWrite == 0 {
		return ErrNotExist
	}
	if !ff.parentOK {
		return ErrNotExist
	}
	name := baseName(path)
	if name == "" {
		return ErrInvalidArg
	}
	// A newly created file owns at least one cluster.
	start, err := fsys.allocateClusters(0, 1)
	if err != nil {
		return err
	}
	sector, offset, err := fsys.dirEntryAdd(ff.parentCluster, name, start, 0)
	if err != nil {
		return err
	}
	if err := fsys.win.flush(); err != nil {
		return err
	}
	fp.fs = fsys
	fp.flag = flag
	fp.start = start
	fp.cluster = start
	fp.clusterIdx = 0
	fp.size = 0
	fp.offset = 0
	fp.deSector = sector
	fp.deOffset = offset
	fsys.nopen++
	return nil
}

// dirEntryAdd writes a short-name entry for name into the first deleted or
// terminator slot of the directory. When the terminator slot is consumed,
// advancing the iterator once guarantees a fresh terminator in the next
// slot, growing the directory by a cluster if required.
func (fsys *FS) dirEntryAdd(dirCluster uint32, name string, startCluster, size uint32) (lba, uint16, error) {
	fsys.trace("dir:add", slog.String("name", name), slog.Uint64("dir", uint64(dirCluster)))
	it := dirIter{fs: fsys}
	de, err := it.first(dirCluster)
	for err == nil && !de.isEnd() && !de.isDeleted() {
		// Stretching here means a directory with no terminator grows a
		// fresh zeroed cluster whose first slot ends the scan.
		de, err = it.next(true)
	}
	if err != nil {
		return 0, 0, err
	}
	sector, offset := it.lba(), it.offset
	if de.isEnd() {
		// The terminator slot is being consumed; make sure one follows.
		if _, err := it.next(true); err != nil {
			return 0, 0, err
		}
		if err := fsys.win.read(sector); err != nil {
			return 0, 0, err
		}
	}
	sfnCreate(dirEntry(fsys.win.buf[offset:offset+slotSize]), name, size, startCluster)
	fsys.win.write(sector)
	return sector, offset, nil
}

// sizeSet writes the cached file size and start cluster back into the short
// directory entry and flushes.
func (fp *File) sizeSet() error {
	fsys := fp.fs
	if err := fsys.win.read(fp.deSector); err != nil {
		return err
	}
	de := dirEntry(fsys.win.buf[fp.deOffset : fp.deOffset+slotSize])
	de.setSize(fp.size)
	de.setStartCluster(fp.start)
	fsys.win.write(fp.deSector)
	return fsys.win.flush()
}

// Read reads up to len(p) bytes at the current offset, clamped to the bytes
// remaining in the file. It implements io.Reader. Content reads bypass the
// sector cache so a dirty FAT or directory sector is never evicted.
func (fp *File) Read(p []byte) (int, error) {
	fsys := fp.fs
	if fsys == nil {
		return 0, ErrInvalidArg
	}
	fsys.trace("file:read", slog.Int("len", len(p)))
	if fp.flag&FlagRead == 0 {
		return 0, ErrInvalidArg
	}
	remain := int64(fp.size) - fp.offset
	if remain <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remain {
		p = p[:remain]
	}
	read := 0
	for read < len(p) {
		// Walk the chain up to the cluster holding the current offset. The
		// read length is clamped to the file size, so the FAT is never
		// consulted past end of file; a chain ending early means corruption
		// and yields a short read.
		ok, err := fp.advanceTo(fp.offset/int64(fsys.bpc), false)
		if err != nil {
			return read, err
		}
		if !ok {
			break
		}
		inSector := uint32(fp.offset % int64(fsys.ssize))
		sector := fsys.sectorOf(fp.cluster) +
			lba(uint32(fp.offset%int64(fsys.bpc))/uint32(fsys.ssize))
		chunk := int(uint32(fsys.ssize) - inSector)
		if chunk > len(p)-read {
			chunk = len(p) - read
		}
		n, err := fsys.devRead(sector, inSector, p[read:read+chunk])
		read += n
		fp.offset += int64(n)
		if err != nil || n < chunk {
			return read, err
		}
	}
	return read, nil
}

// Write writes len(p) bytes at the current offset, extending the cluster
// chain as boundaries are crossed. On an exhausted FAT it returns the bytes
// written so far together with ErrNoSpace; clusters already appended remain
// linked to the file. It implements io.Writer.
func (fp *File) Write(p []byte) (int, error) {
	fsys := fp.fs
	if fsys == nil {
		return 0, ErrInvalidArg
	}
	fsys.trace("file:write", slog.Int("len", len(p)))
	if fp.flag&FlagWrite == 0 {
		return 0, ErrInvalidArg
	}
	if fsys.mode&ModeWrite == 0 {
		return 0, ErrDenied
	}
	written := 0
	var werr error
	if fp.cluster == 0 && len(p) > 0 {
		// Empty chain (a zero-length file created by a host tool): allocate
		// the first cluster before any byte lands.
		start, err := fsys.allocateClusters(0, 1)
		if err != nil {
			return 0, err
		}
		fp.start = start
		fp.cluster = start
		fp.clusterIdx = 0
		if err := fp.sizeSet(); err != nil {
			return 0, err
		}
	}
	for written < len(p) {
		// Walk to the cluster holding the offset, appending links once the
		// chain ends. Out of space stops the loop with a partial count; the
		// clusters already appended stay linked to the file.
		if _, err := fp.advanceTo(fp.offset/int64(fsys.bpc), true); err != nil {
			werr = err
			break
		}
		inSector := uint32(fp.offset % int64(fsys.ssize))
		sector := fsys.sectorOf(fp.cluster) +
			lba(uint32(fp.offset%int64(fsys.bpc))/uint32(fsys.ssize))
		chunk := int(uint32(fsys.ssize) - inSector)
		if chunk > len(p)-written {
			chunk = len(p) - written
		}
		n, err := fsys.devWrite(sector, inSector, p[written:written+chunk])
		written += n
		fp.offset += int64(n)
		if err != nil || n < chunk {
			werr = err
			break
		}
	}
	if uint32(fp.offset) > fp.size {
		fp.size = uint32(fp.offset)
	}
	if err := fp.sizeSet(); err != nil && werr == nil {
		werr = err
	}
	if werr == nil && written < len(p) {
		werr = io.ErrShortWrite
	}
	return written, werr
}

// Seek sets the offset for the next Read or Write, clamped to
// [0, file size], and re-follows the cluster chain from the start cluster.
// It implements io.Seeker.
func (fp *File) Seek(offset int64, whence int) (int64, error) {
	fsys := fp.fs
	if fsys == nil {
		return 0, ErrInvalidArg
	}
	fsys.trace("file:seek", slog.Int64("offset", offset), slog.Int("whence", whence))
	var fpos int64
	switch whence {
	case io.SeekStart:
		fpos = offset
	case io.SeekCurrent:
		fpos = fp.offset + offset
	case io.SeekEnd:
		fpos = int64(fp.size) + offset
	default:
		return fp.offset, ErrInvalidArg
	}
	if fpos < 0 {
		fpos = 0
	}
	if fpos > int64(fp.size) {
		fpos = int64(fp.size)
	}
	fp.offset = fpos
	fp.cluster = fp.start
	fp.clusterIdx = 0
	if fpos > 0 && fp.start != 0 {
		// Re-follow the chain up to the cluster holding the new offset.
		if _, err := fp.advanceTo((fpos-1)/int64(fsys.bpc), false); err != nil {
			return fpos, err
		}
	}
	return fpos, nil
}

// Close releases the handle. All mutating operations flush before
// returning, so no data is pending at this point; Close flushes once more
// for good measure and detaches the handle from the volume.
func (fp *File) Close() error {
	fsys := fp.fs
	if fsys == nil {
		return ErrInvalidArg
	}
	err := fsys.win.flush()
	fsys.nopen--
	fp.fs = nil
	return err
}

// Size returns the current size of the file in bytes.
func (fp *File) Size() int64 { return int64(fp.size) }

// Unlink removes the file at path: its cluster chain is freed and its short
// directory entry, together with any immediately preceding long-filename
// slots, is marked deleted. Directories cannot be removed. Unlink does not
// check whether the file is open elsewhere; no open-file table is kept.
func (fsys *FS) Unlink(path string) error {
	fsys.trace("fs:unlink", slog.String("path", path))
	if !fsys.mounted() {
		return ErrNotMounted
	}
	if fsys.mode&ModeWrite == 0 {
		return ErrDenied
	}
	var ff findResult
	found, err := fsys.searchPath(path, &ff)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotExist
	}
	if ff.isDir {
		return ErrIsDirectory
	}
	if fsys.clusterValid(ff.cluster) {
		if err := fsys.chainFree(ff.cluster); err != nil {
			return err
		}
	}

	// Locate the entry again and find where its long-filename run starts so
	// every slot of the block is marked deleted.
	it := dirIter{fs: fsys}
	de, err := it.first(ff.parentCluster)
	markStart := ff.pos
	runStart := dirPos{}
	runActive := false
	located := false
	for err == nil && !de.isEnd() {
		if it.at(ff.pos) {
			located = true
			if runActive {
				markStart = runStart
			}
			break
		}
		if de.isLFN() {
			if !runActive {
				runStart = it.pos()
				runActive = true
			}
		} else {
			runActive = false
		}
		de, err = it.next(false)
	}
	if err != nil && !errors.Is(err, errDirEnd) {
		return err
	}
	if !located {
		fsys.logerror("unlink: directory entry lost", slog.String("path", path))
		return fsys.win.flush()
	}

	if _, err = it.first(ff.parentCluster); err != nil {
		return err
	}
	marking := false
	for {
		if it.at(markStart) {
			marking = true
		}
		if marking {
			fsys.win.buf[it.offset] = slotDeleted
			fsys.win.write(it.lba())
		}
		if it.at(ff.pos) {
			break
		}
		if _, err = it.next(false); err != nil {
			return err
		}
	}
	return fsys.win.flush()
}

// EntryInfo describes one in-use directory entry yielded by ForEachEntry.
type EntryInfo struct {
	Name         string // long-name form when present, else NAME.EXT.
	ShortName    string
	Size         int64
	StartCluster uint32
	IsDir        bool
	Attr         byte
}

// ForEachEntry calls fn for every in-use entry of the directory at path
// ("" or "/" for the root), assembling long filenames along the way.
// Deleted slots, long-name slots, volume labels and the "." and ".." entries
// are not reported.
// Iteration stops early if fn returns a non-nil error, which is returned.
func (fsys *FS) ForEachEntry(path string, fn func(EntryInfo) error) error {
	if !fsys.mounted() {
		return ErrNotMounted
	}
	dirCluster := fsys.rootDirCluster()
	trimmed := trimSlashes(path)
	if trimmed != "" {
		var ff findResult
		found, err := fsys.searchPath(trimmed, &ff)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotExist
		}
		if !ff.isDir {
			return ErrInvalidArg
		}
		dirCluster = ff.cluster
	}

	var scratch lfnScratch
	longName := ""
	it := dirIter{fs: fsys}
	de, err := it.first(dirCluster)
	for ; err == nil && !de.isEnd(); de, err = it.next(false) {
		if de.isDeleted() {
			continue
		}
		if de.isLFN() {
			if nm, done := scratch.take(de); done {
				longName = nm
			}
			continue
		}
		if de.isVolume() {
			longName = ""
			continue
		}
		short := de.displayName()
		if short == "." || short == ".." {
			longName = ""
			continue
		}
		info := EntryInfo{
			Name:         short,
			ShortName:    short,
			Size:         int64(de.size()),
			StartCluster: de.startCluster(),
			IsDir:        de.isDir(),
			Attr:         de.attr(),
		}
		if longName != "" {
			info.Name = longName
		}
		longName = ""
		if err := fn(info); err != nil {
			return err
		}
	}
	if err != nil && !errors.Is(err, errDirEnd) {
		return err
	}
	return nil
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
