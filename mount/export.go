//go:build linux

package mount

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ExportMountStatsJSON renders stats as indented JSON, suitable for a debug
// endpoint or a one-shot CLI dump.
func ExportMountStatsJSON(stats *Statistics) ([]byte, error) {
	data, err := json.MarshalIndent(stats.Snapshot(), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal mount statistics")
	}

	return data, nil
}

// partitionJSON mirrors PartitionInfo with JSON tags; kept separate so
// PartitionInfo itself stays free of encoding concerns used only by the
// export surface.
type partitionJSON struct {
	Name                       string `json:"name"`
	MountPoint                 string `json:"mount_point"`
	FSType                     string `json:"fs_type"`
	IsReadOnly                 bool   `json:"read_only"`
	ExistsAsSymlinkUnderSystem bool   `json:"symlink_under_system"`
}

// ExportPartitionsJSON renders the detected partition set as JSON.
func ExportPartitionsJSON(partitions []PartitionInfo) ([]byte, error) {
	out := make([]partitionJSON, len(partitions))
	for i, p := range partitions {
		out[i] = partitionJSON{
			Name:                       p.Name,
			MountPoint:                 p.MountPoint,
			FSType:                     p.FSType,
			IsReadOnly:                 p.IsReadOnly,
			ExistsAsSymlinkUnderSystem: p.ExistsAsSymlinkUnderSystem,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal partitions")
	}

	return data, nil
}

// SystemInfo reports the kernel and SELinux state relevant to a magic-mount
// run, gathered from the usual Linux pseudo-files, alongside the mount base
// path, the run's statistics, and the partitions it covers.
type SystemInfo struct {
	KernelVersion    string          `json:"kernel_version"`
	SELinuxStatus    string          `json:"selinux_status"`
	SupportsOpenTree bool            `json:"supports_open_tree"`
	MountBase        string          `json:"mount_base"`
	Stats            Snapshot        `json:"stats"`
	Partitions       []partitionJSON `json:"partitions"`
}

// ExportSystemInfoJSON gathers and renders SystemInfo as JSON: the kernel
// and SELinux state, mountBase (the scratch tmpfs parent directory in use),
// stats' snapshot, and partitions, per spec.md §6.
func ExportSystemInfoJSON(mountBase string, stats *Statistics, partitions []PartitionInfo) ([]byte, error) {
	partitionsOut := make([]partitionJSON, len(partitions))
	for i, p := range partitions {
		partitionsOut[i] = partitionJSON{
			Name:                       p.Name,
			MountPoint:                 p.MountPoint,
			FSType:                     p.FSType,
			IsReadOnly:                 p.IsReadOnly,
			ExistsAsSymlinkUnderSystem: p.ExistsAsSymlinkUnderSystem,
		}
	}

	info := SystemInfo{
		KernelVersion:    readKernelVersion(),
		SELinuxStatus:    readSELinuxStatus(),
		SupportsOpenTree: kernelSupportsOpenTree(),
		MountBase:        mountBase,
		Stats:            statsOrNew(stats).Snapshot(),
		Partitions:       partitionsOut,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal system info")
	}

	return data, nil
}

func readKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "unknown"
	}

	fields := strings.Fields(string(data))
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}

	if len(fields) >= 3 {
		return fields[2]
	}

	return "unknown"
}

// readSELinuxStatus reports "Enforcing", "Permissive", or "Unknown" by
// reading /sys/fs/selinux/enforce directly, avoiding a dependency on a
// running getenforce binary. "Unknown" covers both a missing selinuxfs (no
// SELinux support built into the kernel) and any unreadable file.
func readSELinuxStatus() string {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return "Unknown"
	}

	if strings.TrimSpace(string(data)) == "0" {
		return "Permissive"
	}

	return "Enforcing"
}

// kernelSupportsOpenTree reports whether the running kernel is new enough
// (5.2+) to expose open_tree/move_mount, parsed from the same /proc/version
// string as readKernelVersion. Used only for diagnostics; Bind itself always
// attempts the modern path first regardless of this check and falls back on
// its own.
func kernelSupportsOpenTree() bool {
	version := readKernelVersion()

	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return false
	}

	return major > 5 || (major == 5 && minor >= 2)
}
