//go:build linux

package mount

import (
	"golang.org/x/sys/unix"
)

// FastFileType is the coarse file-type classification GetFileTypeFast
// returns from a single lstat's mode bits.
//
// Supplemental: adapted from original_source/mount/mount_utils.hpp's
// get_file_type_fast, which reads d_type directly off getdents64 results to
// skip a stat syscall per entry during a module tree walk.
type FastFileType int

const (
	FastTypeUnknown FastFileType = iota
	FastTypeFile
	FastTypeDir
	FastTypeSymlink
)

// GetFileTypeFast classifies path using Lstat's mode bits. Go's os package
// does not expose raw dirent d_type from ReadDir without an extra Lstat
// underneath for most platforms, so this wraps unix.Lstat directly instead
// of going through os.Lstat's heavier os.FileInfo allocation when only the
// type is needed (e.g. a bulk pre-scan before planning).
func GetFileTypeFast(path string) FastFileType {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return FastTypeUnknown
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return FastTypeDir
	case unix.S_IFLNK:
		return FastTypeSymlink
	case unix.S_IFREG:
		return FastTypeFile
	default:
		return FastTypeUnknown
	}
}

// ToNodeKind converts a FastFileType to the planner's NodeKind, mapping
// anything unknown (device nodes, sockets, FIFOs) to NodeFile so it is still
// bind-mounted rather than silently dropped.
func (t FastFileType) ToNodeKind() NodeKind {
	switch t {
	case FastTypeDir:
		return NodeDir
	case FastTypeSymlink:
		return NodeSymlink
	default:
		return NodeFile
	}
}
