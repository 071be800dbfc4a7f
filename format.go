package fat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/embfs/fatfs/internal/mbr"
)

// Variant selects the FAT flavour a Formatter lays down.
type Variant uint8

const (
	VariantFAT32 Variant = iota
	VariantFAT16
)

// FormatConfig tunes the formatter. The zero value produces a FAT32 volume
// with 8 sectors per cluster.
type FormatConfig struct {
	Label string
	// SectorsPerCluster must be a power of two between 1 and 64.
	// 0 defaults to 8.
	SectorsPerCluster uint8
	Variant           Variant
}

// Formatter writes an MBR-partitioned FAT volume onto a block device. The
// layout matches what Mount expects: partition 0 carrying the filesystem,
// a single FAT, and on FAT32 the root directory in cluster 2.
type Formatter struct {
	window [sectorSize]byte
	dev    BlockDevice
}

const (
	formatPartStart = 64 // first sector of partition 0.
	fat32Reserved   = 32
	fat16Reserved   = 1
	fat16RootEnts   = 512
)

// Format lays a fresh filesystem over the first totalSectors sectors of dev.
// Existing contents in the formatted region are destroyed.
func (f *Formatter) Format(dev BlockDevice, totalSectors uint32, cfg FormatConfig) error {
	if dev == nil {
		return errors.New("fat: nil device")
	}
	spc := cfg.SectorsPerCluster
	if spc == 0 {
		spc = 8
	}
	if spc&(spc-1) != 0 || spc > 64 {
		return errors.New("fat: sectors per cluster must be a power of two <= 64")
	}
	if cfg.Label == "" {
		cfg.Label = "NO NAME"
	}
	f.dev = dev

	if totalSectors <= formatPartStart+fat32Reserved+2*uint32(spc) {
		return errors.New("fat: device too small")
	}
	partSectors := totalSectors - formatPartStart

	var (
		reserved   uint32
		rootEnts   uint16
		rootSecs   uint32
		entryWidth uint32
		partType   mbr.PartitionType
	)
	switch cfg.Variant {
	case VariantFAT32:
		reserved, rootEnts, rootSecs, entryWidth = fat32Reserved, 0, 0, 4
		partType = mbr.TypeFAT32LBA
	case VariantFAT16:
		reserved, rootEnts, entryWidth = fat16Reserved, fat16RootEnts, 2
		rootSecs = uint32(rootEnts) * slotSize / sectorSize
		partType = mbr.TypeFAT16
	default:
		return errors.New("fat: unknown variant")
	}

	// Upper bound on the FAT size, then the real cluster count under it.
	fatSecs := ((partSectors/uint32(spc)+3)*entryWidth + sectorSize - 1) / sectorSize
	dataSecs := partSectors - reserved - fatSecs - rootSecs
	clusters := dataSecs / uint32(spc)
	if clusters < 16 {
		return errors.New("fat: device too small")
	}
	if cfg.Variant == VariantFAT16 && clusters > 0xFFF4 {
		return fmt.Errorf("fat: %d clusters is too many for FAT16", clusters)
	}

	// MBR.
	f.clr()
	bs, _ := mbr.ToBootSector(f.window[:])
	bs.SetPartition(0, mbr.MakePTE(partType, formatPartStart, partSectors, false))
	bs.SetBootSignature()
	if err := f.put(0); err != nil {
		return err
	}

	// Volume boot record.
	f.clr()
	w := f.window[:]
	copy(w[bsJmpBoot:], []byte{0xEB, 0x58, 0x90})
	copy(w[3:], "MSDOS5.0")
	binary.LittleEndian.PutUint16(w[bpbBytsPerSec:], sectorSize)
	w[bpbSecPerClus] = spc
	binary.LittleEndian.PutUint16(w[bpbRsvdSecCnt:], uint16(reserved))
	w[bpbNumFATs] = 1
	binary.LittleEndian.PutUint16(w[bpbRootEntCnt:], rootEnts)
	w[bpbMedia] = 0xF8
	binary.LittleEndian.PutUint32(w[bpbHiddSec:], formatPartStart)
	binary.LittleEndian.PutUint32(w[bpbTotSec32:], partSectors)
	if cfg.Variant == VariantFAT32 {
		binary.LittleEndian.PutUint32(w[bpbFATSz32:], fatSecs)
		binary.LittleEndian.PutUint32(w[bpbRootClus32:], clustFirst)
		setLabel(w[bsVolLab32:], cfg.Label)
		copy(w[bsFilSysType32:], "FAT32   ")
	} else {
		binary.LittleEndian.PutUint16(w[bpbFATSz16:], uint16(fatSecs))
		setLabel(w[bsVolLab:], cfg.Label)
		copy(w[bsFilSysType:], "FAT16   ")
	}
	binary.LittleEndian.PutUint16(w[bs55AA:], 0xAA55)
	if err := f.put(formatPartStart); err != nil {
		return err
	}

	// Zero the FAT, the FAT16 root run and the first data cluster.
	f.clr()
	fatBase := uint32(formatPartStart + reserved)
	for s := uint32(0); s < fatSecs+rootSecs+uint32(spc); s++ {
		if err := f.put(lba(fatBase + s)); err != nil {
			return err
		}
	}

	// Seed the FAT: media entry, reserved entry and, on FAT32, the root
	// directory chain in cluster 2.
	f.clr()
	if cfg.Variant == VariantFAT32 {
		binary.LittleEndian.PutUint32(f.window[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(f.window[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(f.window[8:], 0x0FFFFFFF)
	} else {
		binary.LittleEndian.PutUint16(f.window[0:], 0xFFF8)
		binary.LittleEndian.PutUint16(f.window[2:], 0xFFFF)
	}
	return f.put(lba(fatBase))
}

func (f *Formatter) clr() {
	f.window = [sectorSize]byte{}
}

func (f *Formatter) put(sector lba) error {
	n, err := f.dev.WriteAt(f.window[:], int64(sector)*sectorSize)
	if err != nil || n != sectorSize {
		return fmt.Errorf("%w: format sector %d: %w", ErrDiskIO, sector, err)
	}
	return nil
}

func setLabel(dst []byte, label string) {
	n := copy(dst[:11], label)
	for ; n < 11; n++ {
		dst[n] = ' '
	}
}
