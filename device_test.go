package fat

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// imageDevice adapts an in-memory read-write-seeker to the byte-addressed
// BlockDevice interface the driver consumes.
type imageDevice struct {
	rws io.ReadWriteSeeker
}

func newImageDevice(sectors int) *imageDevice {
	return &imageDevice{rws: bytesextra.NewReadWriteSeeker(make([]byte, sectors*sectorSize))}
}

func (d *imageDevice) ReadAt(p []byte, off int64) (int, error) {
	if _, err := d.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(d.rws, p)
}

func (d *imageDevice) WriteAt(p []byte, off int64) (int, error) {
	if _, err := d.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return d.rws.Write(p)
}

type testFSConfig struct {
	variant Variant
	sectors int
	spc     uint8
}

func defaultTestFS() testFSConfig {
	return testFSConfig{variant: VariantFAT32, sectors: 4096, spc: 8}
}

// newTestFS formats an in-memory image and mounts it read-write.
func newTestFS(t *testing.T, cfg testFSConfig) (*FS, *imageDevice) {
	t.Helper()
	dev := newImageDevice(cfg.sectors)
	var fmtr Formatter
	err := fmtr.Format(dev, uint32(cfg.sectors), FormatConfig{
		Label:             "TESTVOL",
		Variant:           cfg.variant,
		SectorsPerCluster: cfg.spc,
	})
	require.NoError(t, err, "format in-memory image")
	fsys := &FS{}
	if testing.Verbose() {
		fsys.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevelTrace,
		})))
	}
	require.NoError(t, fsys.Mount(dev, ModeRW), "mount formatted image")
	return fsys, dev
}

// chainOf follows a file's cluster chain through the FAT, for assertions.
func chainOf(t *testing.T, fsys *FS, start uint32) []uint32 {
	t.Helper()
	var chain []uint32
	cluster := start
	for {
		chain = append(chain, cluster)
		require.LessOrEqual(t, len(chain), int(fsys.nclst), "chain does not terminate")
		next, err := fsys.entryGet(cluster)
		require.NoError(t, err)
		require.False(t, isFree(next), "in-use chain contains a free entry")
		if isEOC(next) {
			return chain
		}
		cluster = next
	}
}
