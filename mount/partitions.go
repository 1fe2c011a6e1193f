//go:build linux

package mount

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// procMountsPath is the kernel mount table consulted by DetectPartitions.
// Overridable in tests.
var procMountsPath = "/proc/mounts"

// skipMountNames are pseudo-mounts that are never Android partitions even
// though they satisfy the "single component under /" shape.
var skipMountNames = map[string]bool{
	"proc": true, "sys": true, "dev": true, "data": true, "cache": true,
	"metadata": true, "mnt": true, "storage": true, "apex": true,
	"linkerconfig": true, "sdcard": true, "debug_ramdisk": true,
	"second_stage_resources": true,
}

var standardPartitionSet = func() map[string]bool {
	set := make(map[string]bool, len(StandardPartitions))
	for _, p := range StandardPartitions {
		set[p] = true
	}

	return set
}()

// DetectPartitions parses the kernel mount table and returns every mount
// point that looks like an Android partition: an absolute, non-root mount
// point whose parent is "/" and whose final component is not a pseudo-mount.
func DetectPartitions(logger *zap.Logger) []PartitionInfo {
	logger = nopIfNil(logger)

	file, err := os.Open(procMountsPath)
	if err != nil {
		logger.Error("failed to open mount table", zap.String("path", procMountsPath), zap.Error(err))
		return nil
	}
	defer file.Close()

	var partitions []PartitionInfo

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		info, ok := parseMountLine(scanner.Text())
		if !ok {
			continue
		}

		partitions = append(partitions, info)
		logger.Debug("detected partition",
			zap.String("name", info.Name),
			zap.String("mount_point", info.MountPoint),
			zap.String("fs_type", info.FSType),
			zap.Bool("read_only", info.IsReadOnly))
	}

	return partitions
}

func parseMountLine(line string) (PartitionInfo, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return PartitionInfo{}, false
	}

	mountPoint, fsType, options := fields[1], fields[2], fields[3]

	if mountPoint == "" || !strings.HasPrefix(mountPoint, "/") || mountPoint == "/" {
		return PartitionInfo{}, false
	}

	if filepath.Dir(mountPoint) != "/" {
		return PartitionInfo{}, false
	}

	name := filepath.Base(mountPoint)
	if skipMountNames[name] {
		return PartitionInfo{}, false
	}

	isReadOnly := false

	for _, opt := range strings.Split(options, ",") {
		if opt == "ro" {
			isReadOnly = true
			break
		}
	}

	systemLink := filepath.Join("/system", name)

	fi, err := os.Lstat(systemLink)
	existsAsSymlink := err == nil && fi.Mode()&os.ModeSymlink != 0

	return PartitionInfo{
		Name:                       name,
		MountPoint:                 mountPoint,
		FSType:                     fsType,
		IsReadOnly:                 isReadOnly,
		ExistsAsSymlinkUnderSystem: existsAsSymlink,
	}, true
}

// GetExtraPartitions returns the partition names in all that are not one of
// the standard partitions (system, vendor, product, system_ext, odm).
func GetExtraPartitions(all []PartitionInfo) []string {
	extra := make([]string, 0, len(all))

	for _, p := range all {
		if !standardPartitionSet[p.Name] {
			extra = append(extra, p.Name)
		}
	}

	return extra
}

// IsPartitionMountPoint reports whether path appears verbatim as a mount
// point in the kernel mount table.
//
// Supplemental: present in original_source/mount/partition_utils.hpp
// (is_partition_mount_point) but not named in spec.md's prose; used by the
// Orchestrator to decide whether a configured partition's live path is
// actually a distinct mount before attempting to overlay it.
func IsPartitionMountPoint(path string) bool {
	file, err := os.Open(procMountsPath)
	if err != nil {
		return false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == path {
			return true
		}
	}

	return false
}

const (
	minTmpfsSize = 32 * 1024 * 1024
	maxTmpfsSize = 512 * 1024 * 1024
)

// GetOptimalTmpfsSize computes min(free_ram/10, 512MiB), further clamped by
// partition_size/4 when partitionPath can be statfs'd, then lifted to at
// least 32MiB.
func GetOptimalTmpfsSize(partitionPath string, logger *zap.Logger) uint64 {
	logger = nopIfNil(logger)

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		logger.Warn("failed to read system memory info, using default tmpfs size", zap.Error(err))
		return 256 * 1024 * 1024
	}

	freeRAM := uint64(info.Freeram) * uint64(info.Unit)
	optimal := freeRAM / 10
	if optimal > maxTmpfsSize {
		optimal = maxTmpfsSize
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(partitionPath, &stat); err == nil {
		partitionSize := uint64(stat.Blocks) * uint64(stat.Bsize) //nolint:gosec // stat fields are kernel-bounded sizes
		maxFromPartition := partitionSize / 4

		if maxFromPartition < optimal {
			optimal = maxFromPartition
		}
	}

	if optimal < minTmpfsSize {
		optimal = minTmpfsSize
	}

	logger.Debug("computed optimal tmpfs size", zap.String("partition", partitionPath), zap.String("size", humanizeBytes(optimal)))

	return optimal
}
