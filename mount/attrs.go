//go:build linux

package mount

import (
	"time"

	"github.com/opencontainers/selinux/go-selinux"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// xattrSELinux is the extended attribute name carrying a SELinux label.
//
// clone_attr (original_source/mount/mount_utils.cpp) special-cases this name:
// it is copied first via the platform's SELinux label API, then skipped when
// the generic xattr copy loop runs.
const xattrSELinux = "security.selinux"

// CloneAttr replicates owner, mode, timestamps, SELinux label, and extended
// attributes from source onto a freshly created target.
//
// Steps, in order: lchown, chmod (skipped for symlinks), atime/mtime,
// SELinux label, remaining xattrs. Every failure past the initial lstat is
// logged as a warning and does not change the return value: a booted system
// commonly denies some xattr writes, and losing a label should degrade
// mounting rather than abort it.
//
// CloneAttr returns false only if the initial lstat of source fails.
func CloneAttr(logger *zap.Logger, source, target string) bool {
	logger = nopIfNil(logger)

	var st unix.Stat_t
	if err := unix.Lstat(source, &st); err != nil {
		logger.Error("stat source for attribute clone", zap.String("source", source), zap.Error(err))
		return false
	}

	if err := unix.Lchown(target, int(st.Uid), int(st.Gid)); err != nil {
		logger.Warn("chown failed", zap.String("target", target), zap.Error(err))
	}

	isSymlink := st.Mode&unix.S_IFMT == unix.S_IFLNK
	if !isSymlink {
		if err := unix.Chmod(target, st.Mode&0o7777); err != nil {
			logger.Warn("chmod failed", zap.String("target", target), zap.Error(err))
		}
	}

	if err := cloneTimes(target, st); err != nil {
		logger.Warn("set times failed", zap.String("target", target), zap.Error(err))
	}

	if selinux.GetEnabled() {
		if err := cloneSELinuxLabel(target, source); err != nil {
			logger.Warn("set selinux label failed", zap.String("target", target), zap.Error(err))
		}
	}

	if err := cloneXattrs(target, source); err != nil {
		logger.Warn("clone xattrs failed", zap.String("target", target), zap.Error(err))
	}

	return true
}

// cloneSELinuxLabel copies the security.selinux label from source to target
// via go-selinux's LfileLabel/LsetFileLabel, which (like
// original_source/mount/mount_utils.cpp's lgetxattr/lsetxattr) read and write
// the attribute on the path itself rather than on whatever a symlink points
// at, so a symlink's own label is copied rather than its target's.
func cloneSELinuxLabel(target, source string) error {
	label, err := selinux.LfileLabel(source)
	if err != nil || label == "" {
		return nil //nolint:nilerr // source carries no label; nothing to clone
	}

	return selinux.LsetFileLabel(target, label)
}

func cloneTimes(target string, st unix.Stat_t) error {
	atime := time.Unix(st.Atim.Sec, st.Atim.Nsec)
	mtime := time.Unix(st.Mtim.Sec, st.Mtim.Nsec)

	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}

	return unix.UtimesNanoAt(unix.AT_FDCWD, target, times, unix.AT_SYMLINK_NOFOLLOW)
}

// cloneXattrs copies every extended attribute from source to target except
// security.selinux, which CloneAttr already handled via the SELinux label
// API.
func cloneXattrs(target, source string) error {
	size, err := unix.Llistxattr(source, nil)
	if err != nil || size <= 0 {
		return nil //nolint:nilerr // absence of xattrs is not an error
	}

	list := make([]byte, size)

	n, err := unix.Llistxattr(source, list)
	if err != nil {
		return err
	}

	var firstErr error

	for _, name := range splitXattrNames(list[:n]) {
		if name == xattrSELinux {
			continue
		}

		valSize, err := unix.Lgetxattr(source, name, nil)
		if err != nil || valSize <= 0 {
			continue
		}

		value := make([]byte, valSize)

		if _, err := unix.Lgetxattr(source, name, value); err != nil {
			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		if err := unix.Lsetxattr(target, name, value, 0); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// splitXattrNames splits the NUL-separated buffer returned by llistxattr
// into individual attribute names.
func splitXattrNames(buf []byte) []string {
	var names []string

	start := 0

	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}

			start = i + 1
		}
	}

	return names
}
