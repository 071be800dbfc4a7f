package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	for _, cfg := range []testFSConfig{
		defaultTestFS(),
		{variant: VariantFAT16, sectors: 8192, spc: 4},
	} {
		fsys, _ := newTestFS(t, cfg)
		require.NoError(t, fsys.entrySet(5, 7))
		v, err := fsys.entryGet(5)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), v)

		// Any value in the end-of-chain range decodes to the canonical EOC.
		require.NoError(t, fsys.entrySet(5, clustEOC))
		v, err = fsys.entryGet(5)
		require.NoError(t, err)
		assert.Equal(t, clustEOC, v)
		assert.True(t, isEOC(v))

		require.NoError(t, fsys.entrySet(5, clustFree))
		v, err = fsys.entryGet(5)
		require.NoError(t, err)
		assert.True(t, isFree(v))
	}
}

func TestEntryGetRejectsOutOfRange(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	_, err := fsys.entryGet(0)
	assert.ErrorIs(t, err, ErrCorrupted)
	_, err = fsys.entryGet(1)
	assert.ErrorIs(t, err, ErrCorrupted)
	_, err = fsys.entryGet(fsys.nclst + 2)
	assert.ErrorIs(t, err, ErrCorrupted)
	_, err = fsys.entryGet(fsys.nclst + 1)
	assert.NoError(t, err, "last data cluster is addressable")
}

// Following a free entry as part of a chain is corruption; the checked
// accessor coerces it to end-of-chain so traversals terminate.
func TestEntryGetCheckedCoercesFreeToEOC(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	v, err := fsys.entryGetChecked(9)
	require.NoError(t, err)
	assert.Equal(t, clustEOC, v)
}

func TestAllocateChain(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	before, err := fsys.Stats()
	require.NoError(t, err)

	first, err := fsys.allocateClusters(0, 3*int64(fsys.bpc))
	require.NoError(t, err)
	require.NotZero(t, first)
	chain := chainOf(t, fsys, first)
	assert.Len(t, chain, 3)

	after, err := fsys.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.Free-3, after.Free)

	// Append one more through the same chain root.
	more, err := fsys.allocateClusters(chain[len(chain)-1], 1)
	require.NoError(t, err)
	require.NotZero(t, more)
	assert.Len(t, chainOf(t, fsys, first), 4)

	require.NoError(t, fsys.chainFree(first))
	require.NoError(t, fsys.win.flush())
	final, err := fsys.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.Free, final.Free, "freeing the chain returns every cluster")
}

func TestAllocateZeroBytes(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	first, err := fsys.allocateClusters(0, 0)
	require.NoError(t, err)
	assert.Zero(t, first)
}

func TestFreeClusterFindSkipsAllocated(t *testing.T) {
	fsys, _ := newTestFS(t, defaultTestFS())
	// Cluster 2 is the root directory; the first free cluster follows it.
	c, err := fsys.freeClusterFind(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), c)

	require.NoError(t, fsys.entrySet(3, clustEOC))
	c, err = fsys.freeClusterFind(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c)
}

func TestClusterSentinelClasses(t *testing.T) {
	assert.Equal(t, classFree, classify(clustFree))
	assert.Equal(t, classReserved, classify(clustReserved))
	assert.Equal(t, classReserved, classify(clustRsrvd))
	assert.Equal(t, classBad, classify(clustBad))
	assert.Equal(t, classEndOfChain, classify(clustEOC))
	assert.Equal(t, classEndOfChain, classify(clustEOCFirst))
	assert.Equal(t, classData, classify(42))
}
