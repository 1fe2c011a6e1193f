//go:build linux

package mount

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Bind performs a single bind mount from source to target.
//
// It first attempts the modern open_tree/move_mount pair (kernel 5.2+),
// cloning the source as a detached mount tree and moving it onto target. On
// any error it falls back to a classic MS_BIND mount, adding MS_REC when
// recursive is requested. The failing path pair is logged only if both
// attempts fail — either success is silent, matching
// original_source/mount/mount_utils.cpp's mount_bind_modern, which
// deliberately does not log on the fast path.
func Bind(logger *zap.Logger, source, target string, recursive bool) bool {
	logger = nopIfNil(logger)

	if bindModern(source, target, recursive) {
		return true
	}

	if bindClassic(source, target, recursive) {
		return true
	}

	logger.Error("bind mount failed", zap.String("source", source), zap.String("target", target), zap.Bool("recursive", recursive))

	return false
}

func bindModern(source, target string, recursive bool) bool {
	flags := uint(unix.OPEN_TREE_CLONE | unix.AT_EMPTY_PATH)
	if recursive {
		flags |= unix.AT_RECURSIVE
	}

	treeFD, err := unix.OpenTree(unix.AT_FDCWD, source, flags)
	if err != nil {
		return false
	}
	defer unix.Close(treeFD)

	err = unix.MoveMount(treeFD, "", unix.AT_FDCWD, target, unix.MOVE_MOUNT_F_EMPTY_PATH)

	return err == nil
}

func bindClassic(source, target string, recursive bool) bool {
	flags := uintptr(unix.MS_BIND)
	if recursive {
		flags |= unix.MS_REC
	}

	return unix.Mount(source, target, "", flags, "") == nil
}

// MountWithRetry invokes a raw mount syscall up to maxRetries times, sleeping
// 100ms*attempt between tries. It is used for tmpfs creation, where a
// transient EBUSY is observed during boot.
func MountWithRetry(logger *zap.Logger, source, target, fstype string, flags uintptr, data string, maxRetries int) error {
	logger = nopIfNil(logger)

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := unix.Mount(source, target, fstype, flags, data)
		if err == nil {
			if attempt > 0 {
				logger.Info("mount succeeded after retry", zap.String("target", target), zap.Int("attempt", attempt+1))
			}

			return nil
		}

		lastErr = err

		if attempt < maxRetries-1 {
			logger.Warn("mount attempt failed, retrying", zap.String("target", target), zap.Int("attempt", attempt+1), zap.Error(err))
			time.Sleep(100 * time.Millisecond * time.Duration(attempt+1))
		}
	}

	return errors.Wrapf(lastErr, "mount %q at %q failed after %d attempts", fstype, target, maxRetries)
}
