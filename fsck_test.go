package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDiskCleanVolume(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "file.txt", FlagRW|FlagCreate))
	_, err := fp.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	res, err := fsys.CheckDisk(false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Referenced, "root chain plus one file cluster")
	assert.Zero(t, res.Orphaned)
	assert.Zero(t, res.CrossLinks)
	assert.Zero(t, res.BadChains)
}

// Clusters linked into a chain no directory entry references are the
// documented residue of failed allocations; CheckDisk finds and reclaims
// them.
func TestCheckDiskReclaimsOrphans(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	before, err := fsys.Stats()
	require.NoError(t, err)

	leaked, err := fsys.allocateClusters(0, 2*int64(fsys.bpc))
	require.NoError(t, err)
	require.NotZero(t, leaked)
	require.NoError(t, fsys.win.flush())

	res, err := fsys.CheckDisk(false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Orphaned)
	assert.Zero(t, res.Freed, "dry run frees nothing")

	res, err = fsys.CheckDisk(true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Orphaned)
	assert.EqualValues(t, 2, res.Freed)

	after, err := fsys.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.Free, after.Free, "reclaim restored the free count")

	res, err = fsys.CheckDisk(false)
	require.NoError(t, err)
	assert.Zero(t, res.Orphaned)
}

func TestCheckDiskReportsBadChain(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "broken.bin", FlagRW|FlagCreate))
	data := make([]byte, 2*fsys.bpc)
	_, err := fp.Write(data)
	require.NoError(t, err)
	start := fp.start
	require.NoError(t, fp.Close())

	// Sever the chain: the first link now points at a free entry.
	chain := chainOf(t, fsys, start)
	require.Len(t, chain, 2)
	require.NoError(t, fsys.entrySet(chain[1], clustFree))
	require.NoError(t, fsys.win.flush())

	res, err := fsys.CheckDisk(false)
	assert.Error(t, err, "severed chain is reported")
	assert.NotZero(t, res.BadChains)
}

func TestCheckDiskReclaimNeedsWriteMode(t *testing.T) {
	fsys, dev := newTestFS(t, defaultTestFS())
	require.NoError(t, fsys.Unmount())
	var ro FS
	require.NoError(t, ro.Mount(dev, ModeRead))
	_, err := ro.CheckDisk(true)
	assert.ErrorIs(t, err, ErrDenied)
}
