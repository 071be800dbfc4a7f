package fat

import (
	"errors"
	"log/slog"
	"strings"
)

// maxComponentLen bounds one path component; longer components cannot match
// anything the driver creates and are rejected outright.
const maxComponentLen = 255

// findResult describes a directory entry located by dirSearch, with enough
// context for the caller to rewrite it (size updates, unlink).
type findResult struct {
	name          string // matched name; long-name form preferred.
	pos           dirPos // position of the short entry in the parent.
	deSector      lba    // sector holding the short entry.
	deOffset      uint16 // offset of the short entry in that sector.
	cluster       uint32 // start cluster.
	size          uint32
	isDir         bool
	parentCluster uint32 // directory the entry lives in.
	parentOK      bool   // false when a non-terminal component was missing.
}

// wildMatch matches str against pat with the DOS wildcard dialect: '?'
// matches any single character except '.', '*' matches any run including
// the empty one, and letters compare case-insensitively (ASCII).
func wildMatch(pat, str string) bool {
	star := false
loopStart:
	for {
		s, p := str, pat
		for len(s) > 0 {
			var pc byte
			if len(p) > 0 {
				pc = p[0]
			}
			switch pc {
			case '?':
				if s[0] == '.' {
					goto starCheck
				}
			case '*':
				star = true
				str, pat = s, p
				pat = pat[1:]
				if len(pat) == 0 {
					return true
				}
				continue loopStart
			default:
				if upperASCII(s[0]) != upperASCII(pc) {
					goto starCheck
				}
			}
			s = s[1:]
			p = p[1:]
		}
		if len(p) > 0 && p[0] == '*' {
			p = p[1:]
		}
		return len(p) == 0

	starCheck:
		if !star {
			return false
		}
		str = str[1:]
		goto loopStart
	}
}

// lfnScratch accumulates a long filename while scanning a directory. Slots
// arrive last-first in disk order; each carries 13 characters at the index
// encoded in its sequence number. Only the low byte of each UCS-2 character
// is kept.
type lfnScratch struct {
	buf [lfnMaxName + lfnChars]byte
}

func (l *lfnScratch) reset() {
	l.buf = [len(l.buf)]byte{}
}

func (l *lfnScratch) take(de dirEntry) (name string, complete bool) {
	if de.isLast() {
		l.reset()
	}
	de.lfnCopy(l.buf[:])
	if de.seqNum() != 1 {
		return "", false
	}
	n := 0
	for n < len(l.buf) && l.buf[n] != 0 {
		n++
	}
	return string(l.buf[:n]), true
}

// dirSearch scans one directory for a name, assembling long filenames and
// matching both the long and the displayable short form with wildMatch.
// Volume labels and the "." self-reference are skipped. At most one match
// is returned; when the long-name reassembly matched, its form is the one
// reported.
func (fsys *FS) dirSearch(dirCluster uint32, name string, ff *findResult) (bool, error) {
	fsys.trace("dir:search", slog.String("name", name), slog.Uint64("dir", uint64(dirCluster)))
	var scratch lfnScratch
	var longName string
	longMatch := false

	it := dirIter{fs: fsys}
	de, err := it.first(dirCluster)
	for ; err == nil && !de.isEnd(); de, err = it.next(false) {
		if de.isDeleted() {
			continue
		}
		if de.isLFN() {
			if nm, done := scratch.take(de); done {
				longName = nm
				longMatch = wildMatch(name, longName)
			}
			continue
		}
		if de.isVolume() {
			longMatch = false
			continue
		}
		disp := de.displayName()
		if disp == "." {
			longMatch = false
			continue
		}
		if wildMatch(name, disp) || longMatch {
			ff.name = disp
			if longMatch {
				ff.name = longName
			}
			ff.pos = it.pos()
			ff.deSector = it.lba()
			ff.deOffset = it.offset
			ff.cluster = de.startCluster()
			ff.size = de.size()
			ff.isDir = de.isDir()
			return true, nil
		}
		longMatch = false
	}
	if err != nil && !errors.Is(err, errDirEnd) {
		return false, err
	}
	return false, nil
}

// searchPath resolves a '/'-separated path starting at the root directory.
// An empty component ("//") fails the search. When a non-terminal component
// is missing, parentOK is cleared so a create cannot target a directory
// that does not exist.
func (fsys *FS) searchPath(path string, ff *findResult) (bool, error) {
	fsys.trace("fs:search", slog.String("path", path))
	if path == "" {
		return false, ErrInvalidArg
	}
	p := strings.TrimPrefix(path, "/")
	if p == "" {
		return false, ErrInvalidArg
	}
	ff.parentCluster = fsys.rootDirCluster()
	ff.parentOK = true
	for len(p) > 0 {
		comp := p
		if i := strings.IndexByte(p, '/'); i >= 0 {
			comp, p = p[:i], p[i:]
		} else {
			p = ""
		}
		if comp == "" || len(comp) > maxComponentLen {
			ff.parentOK = false
			return false, nil
		}
		found, err := fsys.dirSearch(ff.parentCluster, comp, ff)
		if err != nil {
			return false, err
		}
		if !found {
			if len(p) > 0 {
				// Missing intermediate directory: the parent recorded in
				// ff does not exist.
				ff.parentOK = false
			}
			return false, nil
		}
		if len(p) > 0 {
			p = p[1:] // Skip the separator.
			if !ff.isDir {
				// Trailing slash or subpath under a plain file.
				return false, nil
			}
			if len(p) > 0 {
				ff.parentCluster = ff.cluster
			}
		}
	}
	return true, nil
}

// baseName is the final component of a path; empty when the path addresses
// a directory with a trailing slash.
func baseName(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
