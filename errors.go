package fat

import "errors"

// Errors returned by the driver. Operations that transfer data report short
// transfers through their byte counts; these sentinels classify the cause.
var (
	// ErrNotExist is returned when a path does not resolve to an entry.
	ErrNotExist = errors.New("fat: no such file")
	// ErrIsDirectory is returned when a path resolves to a directory where a
	// file was expected.
	ErrIsDirectory = errors.New("fat: is a directory")
	// ErrNotMounted is returned when the volume is unmounted or its geometry
	// is corrupt (zero bytes per sector or cluster).
	ErrNotMounted = errors.New("fat: volume not mounted")
	// ErrNoFilesystem is returned by Mount when the device does not carry an
	// MBR with a supported FAT partition.
	ErrNoFilesystem = errors.New("fat: no FAT filesystem found")
	// ErrInvalidArg flags a malformed path or a write on a read-only handle.
	ErrInvalidArg = errors.New("fat: invalid argument")
	// ErrNoSpace is returned when the FAT has no free cluster left.
	ErrNoSpace = errors.New("fat: out of space")
	// ErrCorrupted flags an inconsistency found while following a cluster
	// chain, such as a free entry inside an in-use chain.
	ErrCorrupted = errors.New("fat: filesystem corrupted")
	// ErrDenied is returned when the mount mode prohibits the operation.
	ErrDenied = errors.New("fat: access denied")
	// ErrDirFull is returned when a directory cannot hold another entry and
	// cannot be extended (the FAT16 root directory is a fixed run).
	ErrDirFull = errors.New("fat: directory full")
	// ErrBusy is returned by Unmount while file handles are still open.
	ErrBusy = errors.New("fat: volume busy")
	// ErrDiskIO wraps short reads or writes reported by the block device.
	ErrDiskIO = errors.New("fat: disk i/o error")
)
