package fat

import (
	"errors"
	"log/slog"
)

// errDirEnd terminates iteration past the last physical slot of a directory
// whose chain may not be extended. Internal; callers map it onto the public
// taxonomy where it escapes.
var errDirEnd = errors.New("fat: end of directory")

// dirPos addresses a slot by cluster, sector index within the cluster and
// byte offset within the sector. It survives cache movement, unlike the
// dirEntry views handed out by the iterator.
type dirPos struct {
	cluster uint32
	sector  uint32
	offset  uint16
}

// dirIter walks the 32-byte slots of a directory across its cluster chain.
// For the fixed FAT16 root (cluster 0) it walks the contiguous root run
// instead. The iterator is transient; one is created per traversal.
type dirIter struct {
	fs      *FS
	cluster uint32 // current cluster, 0 for the FAT16 root.
	sector  uint32 // sector index within the current cluster.
	sectors uint32 // sectors per directory cluster.
	offset  uint16 // byte offset of the current slot within the sector.
}

// first positions the iterator on slot 0 of the directory and returns it.
func (it *dirIter) first(dirCluster uint32) (dirEntry, error) {
	it.cluster = dirCluster
	it.sector = 0
	it.sectors = it.fs.dirSectors(dirCluster)
	it.offset = 0
	if err := it.fs.win.read(it.lba()); err != nil {
		return nil, err
	}
	return it.entry(), nil
}

func (it *dirIter) lba() lba {
	return it.fs.sectorOf(it.cluster) + lba(it.sector)
}

func (it *dirIter) pos() dirPos {
	return dirPos{cluster: it.cluster, sector: it.sector, offset: it.offset}
}

func (it *dirIter) at(p dirPos) bool {
	return it.cluster == p.cluster && it.sector == p.sector && it.offset == p.offset
}

// entry returns the current slot as a view into the cache buffer. The cache
// must hold the iterator's sector.
func (it *dirIter) entry() dirEntry {
	return dirEntry(it.fs.win.buf[it.offset : it.offset+slotSize])
}

// next advances to the following slot, crossing sectors and clusters as
// needed. At the end of the cluster chain: with stretch set, a new cluster
// is allocated, linked in and given an empty-slot terminator; without it,
// errDirEnd is returned. The fixed FAT16 root can never be stretched.
func (it *dirIter) next(stretch bool) (dirEntry, error) {
	fsys := it.fs
	it.offset += slotSize
	if it.offset < fsys.ssize {
		if err := fsys.win.read(it.lba()); err != nil {
			return nil, err
		}
		return it.entry(), nil
	}
	it.offset = 0
	it.sector++
	if it.sector >= it.sectors {
		if it.cluster == 0 {
			// FAT16 root: fixed run of sectors, cannot be extended.
			if stretch {
				return nil, ErrDirFull
			}
			return nil, errDirEnd
		}
		next, err := fsys.entryGetChecked(it.cluster)
		if err != nil {
			return nil, err
		}
		if isEOC(next) {
			if !stretch {
				return nil, errDirEnd
			}
			next, err = fsys.allocateClusters(it.cluster, 1)
			if err != nil {
				return nil, err
			}
			fsys.trace("dir:stretch", slog.Uint64("cluster", uint64(next)))
			it.cluster = next
			it.sector = 0
			// Clear the whole new cluster so slot 0 is the empty-slot
			// terminator of the grown directory and no stale bytes ever
			// surface as entries.
			base := fsys.sectorOf(next)
			for s := uint32(0); s < it.sectors; s++ {
				if err := fsys.win.zero(base + lba(s)); err != nil {
					return nil, err
				}
			}
			if err := fsys.win.read(it.lba()); err != nil {
				return nil, err
			}
			return it.entry(), nil
		}
		it.cluster = next
		it.sector = 0
	}
	if err := fsys.win.read(it.lba()); err != nil {
		return nil, err
	}
	return it.entry(), nil
}
