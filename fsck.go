package fat

import (
	"errors"
	"fmt"
	"log/slog"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
)

// CheckResult summarises a CheckDisk pass over the volume.
type CheckResult struct {
	Referenced uint32 // clusters reachable from the root directory.
	Orphaned   uint32 // allocated clusters no directory entry references.
	Freed      uint32 // orphaned clusters released (reclaim only).
	CrossLinks int    // chains sharing a cluster with another chain.
	BadChains  int    // chains ending in a free or out-of-range entry.
}

// CheckDisk audits the volume: every directory reachable from the root is
// walked, every file and directory chain is followed and marked in a
// cluster map, and the FAT is then scanned for allocated clusters nothing
// references. Such orphans are the documented residue of allocation
// failures; with reclaim set they are freed. Findings that do not stop the
// scan are aggregated into the returned error.
func (fsys *FS) CheckDisk(reclaim bool) (CheckResult, error) {
	fsys.trace("fs:checkdisk", slog.Bool("reclaim", reclaim))
	var res CheckResult
	if !fsys.mounted() {
		return res, ErrNotMounted
	}
	if reclaim && fsys.mode&ModeWrite == 0 {
		return res, ErrDenied
	}
	refd := bitmap.New(int(fsys.nclst) + 2)
	var findings *multierror.Error

	markChain := func(start uint32, what string) {
		cluster := start
		for hops := uint32(0); hops <= fsys.nclst; hops++ {
			if !fsys.clusterValid(cluster) {
				findings = multierror.Append(findings,
					fmt.Errorf("%w: %s chain from %d hits invalid cluster %d", ErrCorrupted, what, start, cluster))
				res.BadChains++
				return
			}
			if refd.Get(int(cluster)) {
				findings = multierror.Append(findings,
					fmt.Errorf("%w: %s chain from %d cross-linked at cluster %d", ErrCorrupted, what, start, cluster))
				res.CrossLinks++
				return
			}
			refd.Set(int(cluster), true)
			res.Referenced++
			next, err := fsys.entryGet(cluster)
			if err != nil {
				findings = multierror.Append(findings, err)
				res.BadChains++
				return
			}
			if isFree(next) {
				findings = multierror.Append(findings,
					fmt.Errorf("%w: %s chain from %d ends in a free entry at cluster %d", ErrCorrupted, what, start, cluster))
				res.BadChains++
				return
			}
			if isEOC(next) {
				return
			}
			cluster = next
		}
		findings = multierror.Append(findings,
			fmt.Errorf("%w: %s chain from %d exceeds cluster count, assuming cycle", ErrCorrupted, what, start))
		res.BadChains++
	}

	// Walk all directories breadth-first from the root. The FAT32 root is a
	// chain like any other; the FAT16 root run owns no clusters.
	pending := []uint32{fsys.rootDirCluster()}
	if fsys.fstype == fstypeFAT32 {
		markChain(fsys.rootclst, "root directory")
	}
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]
		it := dirIter{fs: fsys}
		de, err := it.first(dir)
		for ; err == nil && !de.isEnd(); de, err = it.next(false) {
			if de.isDeleted() || de.isLFN() || de.isVolume() {
				continue
			}
			name := de.displayName()
			if name == "." || name == ".." {
				continue
			}
			start := de.startCluster()
			if start == 0 {
				continue // zero-length file with no chain.
			}
			if de.isDir() {
				if fsys.clusterValid(start) && !refd.Get(int(start)) {
					markChain(start, name)
					pending = append(pending, start)
				}
				continue
			}
			markChain(start, name)
		}
		if err != nil && !errors.Is(err, errDirEnd) {
			return res, err
		}
	}

	// Anything allocated but unreferenced is an orphan.
	for cluster := clustFirst; cluster <= fsys.nclst+1; cluster++ {
		v, err := fsys.entryGet(cluster)
		if err != nil {
			return res, err
		}
		if isFree(v) || refd.Get(int(cluster)) || v == clustBad {
			continue
		}
		res.Orphaned++
		if reclaim {
			if err := fsys.entrySet(cluster, clustFree); err != nil {
				return res, err
			}
			res.Freed++
		}
	}
	if err := fsys.win.flush(); err != nil {
		return res, err
	}
	return res, findings.ErrorOrNil()
}
