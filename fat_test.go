package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountGeometry(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	info := fsys.Info()
	assert.Equal(t, "FAT32", info.Type)
	assert.Equal(t, uint8(8), info.SectorsPerCluster)
	assert.Equal(t, uint32(8*sectorSize), info.BytesPerCluster)
	assert.NotZero(t, info.TotalClusters)
}

// A freshly formatted volume has only the root directory allocated.
func TestMountFreshStats(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	s, err := fsys.Stats()
	require.NoError(t, err)
	assert.Equal(t, fsys.nclst, s.Total)
	assert.Equal(t, s.Total, s.Free+s.Allocated, "stats must add up")
	assert.Equal(t, uint32(1), s.Allocated, "only the root directory chain")
	assert.NotZero(t, s.Free)
}

func TestMountFAT16(t *testing.T) {
	fsys, _ := newTestFS(t, testFSConfig{variant: VariantFAT16, sectors: 8192, spc: 4})
	assert.Equal(t, "FAT16", fsys.Info().Type)
	assert.False(t, fsys.IsFAT32())

	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "f16.txt", FlagRW|FlagCreate))
	_, err := fp.Write([]byte("sixteen"))
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	require.NoError(t, fsys.OpenFile(&fp, "f16.txt", FlagRead))
	buf := make([]byte, 16)
	n, err := fp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "sixteen", string(buf[:n]))
	require.NoError(t, fp.Close())
}

func TestMountRejectsBareVolumeBootRecord(t *testing.T) {
	dev := newImageDevice(128)
	sector := make([]byte, sectorSize)
	sector[0] = 0xEB // jump opcode: a VBR, not an MBR.
	binary.LittleEndian.PutUint16(sector[bs55AA:], 0xAA55)
	_, err := dev.WriteAt(sector, 0)
	require.NoError(t, err)

	var fsys FS
	assert.ErrorIs(t, fsys.Mount(dev, ModeRW), ErrNoFilesystem)
}

func TestMountRejectsUnknownPartitionType(t *testing.T) {
	cfg := defaultTestFS()
	dev := newImageDevice(cfg.sectors)
	var fmtr Formatter
	require.NoError(t, fmtr.Format(dev, uint32(cfg.sectors), FormatConfig{}))

	// Clobber partition 0's type byte (offset 446+4 within the MBR).
	_, err := dev.WriteAt([]byte{0x83}, 446+4)
	require.NoError(t, err)

	var fsys FS
	assert.ErrorIs(t, fsys.Mount(dev, ModeRW), ErrNoFilesystem)
}

func TestMountRejectsMissingSignature(t *testing.T) {
	dev := newImageDevice(128)
	var fsys FS
	assert.ErrorIs(t, fsys.Mount(dev, ModeRW), ErrNoFilesystem)
}

func TestUnmountWithOpenHandles(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "busy.txt", FlagRW|FlagCreate))
	assert.ErrorIs(t, fsys.Unmount(), ErrBusy)
	require.NoError(t, fp.Close())
	require.NoError(t, fsys.Unmount())
	assert.ErrorIs(t, fsys.Unmount(), ErrNotMounted)
}

// Flush discipline: after a mutating sequence completes, a second mount over
// the same device observes the written state.
func TestRemountSeesWrites(t *testing.T) {
	fsys, dev := newTestFS(t, defaultTestFS())
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "persist.txt", FlagRW|FlagCreate))
	_, err := fp.Write([]byte("durable"))
	require.NoError(t, err)
	require.NoError(t, fp.Close())
	require.NoError(t, fsys.Unmount())

	var fresh FS
	require.NoError(t, fresh.Mount(dev, ModeRead))
	require.NoError(t, fresh.OpenFile(&fp, "persist.txt", FlagRead))
	buf := make([]byte, 16)
	n, err := fp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "durable", string(buf[:n]))
	require.NoError(t, fp.Close())
}
