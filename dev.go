package fat

import (
	"fmt"
	"io"
	"log/slog"
)

// BlockDevice is the byte-addressed storage a volume is mounted on. The
// driver issues reads and writes at arbitrary byte offsets and sizes; the
// device is responsible for mapping them onto its underlying block
// granularity. An os.File over a disk image satisfies the interface, as does
// any SD card or flash translation layer exposing ReadAt/WriteAt.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// sector index type.
type lba uint32

// devRead reads len(dst) bytes starting at the given offset within sector.
// It bypasses the sector cache; file content I/O uses it directly so that a
// dirty FAT or directory sector is never evicted mid-operation.
func (fsys *FS) devRead(sector lba, offset uint32, dst []byte) (int, error) {
	n, err := fsys.dev.ReadAt(dst, int64(sector)*int64(fsys.ssize)+int64(offset))
	if err != nil && err != io.EOF {
		fsys.logerror("devRead", slog.Uint64("sector", uint64(sector)), slog.String("err", err.Error()))
		return n, fmt.Errorf("%w: %w", ErrDiskIO, err)
	}
	return n, nil
}

func (fsys *FS) devWrite(sector lba, offset uint32, data []byte) (int, error) {
	n, err := fsys.dev.WriteAt(data, int64(sector)*int64(fsys.ssize)+int64(offset))
	if err != nil {
		fsys.logerror("devWrite", slog.Uint64("sector", uint64(sector)), slog.String("err", err.Error()))
		return n, fmt.Errorf("%w: %w", ErrDiskIO, err)
	}
	return n, nil
}
