package fat

import (
	"context"
	"log/slog"

	"github.com/embfs/fatfs/internal/mbr"
)

type fstype byte

const (
	fstypeUnknown fstype = iota
	fstypeFAT16
	fstypeFAT32
)

// Mode is the volume access mode passed to Mount.
type Mode uint8

const (
	ModeRead  Mode = 1 << 0
	ModeWrite Mode = 1 << 1
	ModeRW    Mode = ModeRead | ModeWrite
)

// BIOS parameter block byte offsets within the volume boot sector.
const (
	bsJmpBoot      = 0   // x86 jump instruction (3-byte)
	bpbBytsPerSec  = 11  // Sector size [byte] (WORD)
	bpbSecPerClus  = 13  // Cluster size [sector] (BYTE)
	bpbRsvdSecCnt  = 14  // Size of reserved area [sector] (WORD)
	bpbNumFATs     = 16  // Number of FATs (BYTE)
	bpbRootEntCnt  = 17  // Size of root directory area for FAT16 [entry] (WORD)
	bpbTotSec16    = 19  // Volume size (16-bit) [sector] (WORD)
	bpbMedia       = 21  // Media descriptor byte (BYTE)
	bpbFATSz16     = 22  // FAT size (16-bit) [sector] (WORD)
	bpbHiddSec     = 28  // Volume offset from top of the drive (DWORD)
	bpbTotSec32    = 32  // Volume size (32-bit) [sector] (DWORD)
	bpbFATSz32     = 36  // FAT32: FAT size [sector] (DWORD)
	bpbRootClus32  = 44  // FAT32: Root directory cluster (DWORD)
	bsVolLab       = 43  // FAT16: Volume label string (11-byte)
	bsFilSysType   = 54  // FAT16: Filesystem type string (8-byte)
	bsVolLab32     = 71  // FAT32: Volume label string (11-byte)
	bsFilSysType32 = 82  // FAT32: Filesystem type string (8-byte)
	bs55AA         = 510 // Signature word (WORD)
)

// FS is a mounted FAT16/FAT32 volume on a block device. The zero value is
// unmounted; call Mount before use. An FS owns exactly one cached sector
// which serialises all FAT and directory mutations. FS is not safe for
// concurrent use.
type FS struct {
	dev    BlockDevice
	log    *slog.Logger
	win    sectorCache
	fstype fstype
	mode   Mode
	nopen  int // live file handles, blocks Unmount.

	ssize    uint16 // sector size in bytes.
	csize    uint8  // cluster size in sectors.
	bpc      uint32 // cluster size in bytes.
	fatbase  lba    // first FAT sector.
	fatsize  uint32 // sectors per FAT.
	database lba    // first data sector, partition adjusted.
	rootbase lba    // FAT16: first root directory sector.
	rootsecs uint32 // FAT16: sectors in the root directory run.
	rootclst uint32 // FAT32: root directory cluster. 0 on FAT16.
	nclst    uint32 // number of data clusters; valid range is [2, nclst+1].
}

// SetLogger attaches a logger used for tracing and corruption reports.
// A nil logger disables logging.
func (fsys *FS) SetLogger(log *slog.Logger) { fsys.log = log }

// Mount probes the MBR-partitioned device and mounts the FAT volume found in
// partition 0. Accepted partition types are FAT16, FAT32 and FAT32-LBA; a
// bare volume boot record without an MBR is rejected. Only 512-byte sectors
// are supported.
func (fsys *FS) Mount(dev BlockDevice, mode Mode) error {
	fsys.trace("fs:mount")
	if dev == nil || mode&ModeRW == 0 {
		return ErrInvalidArg
	}
	fsys.fstype = fstypeUnknown
	fsys.dev = dev
	fsys.mode = mode
	fsys.ssize = sectorSize
	fsys.win.init(dev)

	if err := fsys.win.read(0); err != nil {
		return err
	}
	// A jump opcode in the first byte means a bare volume boot record; the
	// driver expects a partitioned disk.
	if b := fsys.win.buf[bsJmpBoot]; b == 0xE9 || b == 0xEB {
		fsys.logerror("mount: bare boot sector, no MBR")
		return ErrNoFilesystem
	}
	bs, err := mbr.ToBootSector(fsys.win.buf[:])
	if err != nil || bs.BootSignature() != mbr.BootSignature {
		return ErrNoFilesystem
	}
	part := bs.Partition(0)
	partStart := lba(part.StartLBA())
	switch part.Type() {
	case mbr.TypeFAT16CHS, mbr.TypeFAT16, mbr.TypeFAT16LBA:
		fsys.fstype = fstypeFAT16
	case mbr.TypeFAT32CHS, mbr.TypeFAT32LBA:
		fsys.fstype = fstypeFAT32
	default:
		fsys.logerror("mount: unsupported partition", slog.Uint64("type", uint64(part.Type())))
		return ErrNoFilesystem
	}

	// Volume boot record of partition 0.
	if err := fsys.win.read(partStart); err != nil {
		fsys.fstype = fstypeUnknown
		return err
	}
	if fsys.win.u16(bs55AA) != 0xAA55 || fsys.win.u16(bpbBytsPerSec) != sectorSize {
		fsys.fstype = fstypeUnknown
		return ErrNoFilesystem
	}
	fsys.csize = fsys.win.buf[bpbSecPerClus]
	if fsys.csize == 0 {
		fsys.fstype = fstypeUnknown
		return ErrNoFilesystem
	}
	fsys.bpc = uint32(fsys.csize) * uint32(fsys.ssize)

	reserved := fsys.win.u16(bpbRsvdSecCnt)
	nFATs := fsys.win.buf[bpbNumFATs]
	rootEntries := fsys.win.u16(bpbRootEntCnt)
	fsys.fatsize = uint32(fsys.win.u16(bpbFATSz16))
	if fsys.fatsize == 0 {
		fsys.fatsize = fsys.win.u32(bpbFATSz32)
	}
	totalSectors := uint32(fsys.win.u16(bpbTotSec16))
	if totalSectors == 0 {
		totalSectors = fsys.win.u32(bpbTotSec32)
	}
	if reserved == 0 || nFATs == 0 || fsys.fatsize == 0 || totalSectors == 0 {
		fsys.fstype = fstypeUnknown
		return ErrNoFilesystem
	}

	fsys.rootsecs = (uint32(rootEntries)*slotSize + uint32(fsys.ssize) - 1) / uint32(fsys.ssize)
	firstDataRel := uint32(reserved) + uint32(nFATs)*fsys.fatsize + fsys.rootsecs
	if totalSectors < firstDataRel {
		fsys.fstype = fstypeUnknown
		return ErrNoFilesystem
	}
	fsys.nclst = (totalSectors - firstDataRel) / uint32(fsys.csize)
	fsys.fatbase = partStart + lba(reserved)
	fsys.database = partStart + lba(firstDataRel)
	fsys.rootbase = partStart + lba(reserved) + lba(uint32(nFATs)*fsys.fatsize)
	if fsys.fstype == fstypeFAT32 {
		fsys.rootclst = fsys.win.u32(bpbRootClus32)
		fsys.rootsecs = 0
		if fsys.rootclst < clustFirst {
			fsys.fstype = fstypeUnknown
			return ErrNoFilesystem
		}
	} else {
		fsys.rootclst = 0
		if fsys.rootsecs == 0 {
			fsys.fstype = fstypeUnknown
			return ErrNoFilesystem
		}
	}

	fsys.debug("fs:mounted",
		slog.Uint64("partStart", uint64(partStart)),
		slog.Uint64("clusters", uint64(fsys.nclst)),
		slog.Uint64("bytesPerCluster", uint64(fsys.bpc)),
	)
	return nil
}

// Unmount flushes the sector cache and detaches the block device. It fails
// with ErrBusy while file handles opened on the volume remain unclosed.
func (fsys *FS) Unmount() error {
	if !fsys.mounted() {
		return ErrNotMounted
	}
	if fsys.nopen > 0 {
		return ErrBusy
	}
	if err := fsys.win.flush(); err != nil {
		return err
	}
	fsys.fstype = fstypeUnknown
	fsys.win.invalidate()
	fsys.dev = nil
	return nil
}

func (fsys *FS) mounted() bool {
	return fsys.fstype != fstypeUnknown && fsys.ssize != 0 && fsys.bpc != 0
}

// IsFAT32 reports whether the mounted volume is FAT32 rather than FAT16.
func (fsys *FS) IsFAT32() bool { return fsys.fstype == fstypeFAT32 }

// VolumeInfo is the geometry of a mounted volume.
type VolumeInfo struct {
	Type              string // "FAT16" or "FAT32".
	SectorsPerCluster uint8
	BytesPerCluster   uint32
	TotalClusters     uint32
}

// Info reports the mounted volume's geometry.
func (fsys *FS) Info() VolumeInfo {
	info := VolumeInfo{
		Type:              "FAT16",
		SectorsPerCluster: fsys.csize,
		BytesPerCluster:   fsys.bpc,
		TotalClusters:     fsys.nclst,
	}
	if fsys.fstype == fstypeFAT32 {
		info.Type = "FAT32"
	}
	return info
}

// rootDirCluster is the cluster the path resolver starts from: the FAT32
// root cluster, or the sentinel 0 addressing the fixed FAT16 root run.
func (fsys *FS) rootDirCluster() uint32 {
	return fsys.rootclst
}

// sectorOf maps a cluster number to its first sector. Cluster 0 addresses
// the fixed FAT16 root directory.
func (fsys *FS) sectorOf(cluster uint32) lba {
	if cluster == 0 {
		return fsys.rootbase
	}
	return fsys.database + lba(cluster-clustFirst)*lba(fsys.csize)
}

// dirSectors is the number of sectors spanned by one directory cluster,
// which for the FAT16 root is the whole fixed run.
func (fsys *FS) dirSectors(cluster uint32) uint32 {
	if fsys.fstype != fstypeFAT32 && cluster == 0 {
		return fsys.rootsecs
	}
	return uint32(fsys.csize)
}

func (fsys *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fsys.log != nil {
		fsys.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

const slogLevelTrace = slog.LevelDebug - 2

func (fsys *FS) trace(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slogLevelTrace, msg, attrs...)
}
func (fsys *FS) debug(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelDebug, msg, attrs...)
}
func (fsys *FS) logerror(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelError, msg, attrs...)
}
