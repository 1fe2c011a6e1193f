//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// withFakeMountTable points procMountsPath at a file listing exactly the
// given mount points, restoring the real path on cleanup. Mirrors the
// teacher's pattern of redirecting a package-level path var for hermetic
// tests rather than requiring a real mount namespace.
func withFakeMountTable(t *testing.T, mountPoints ...string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mounts")

	var content string
	for _, mp := range mountPoints {
		content += "none " + mp + " ext4 ro 0 0\n"
	}

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	original := procMountsPath
	procMountsPath = path

	t.Cleanup(func() { procMountsPath = original })
}

// TestMountPartitionsSkipsNonDistinctMountPointWithoutTouchingStats pins
// spec.md §8 S4: a configured partition whose mount point does not appear in
// the kernel mount table is skipped outright, and total/successful/failed
// must stay at zero for it.
func TestMountPartitionsSkipsNonDistinctMountPointWithoutTouchingStats(t *testing.T) {
	t.Parallel()

	withFakeMountTable(t /* no mount points at all */)

	stats := NewStatistics()
	opts := Options{Stats: stats, ScratchBase: t.TempDir()}

	partition := PartitionInfo{Name: "system", MountPoint: "/system"}

	err := MountPartitions(opts, []PartitionInfo{partition}, nil)
	require.NoError(t, err)

	snap := stats.Snapshot()
	require.Zero(t, snap.TotalMounts)
	require.Zero(t, snap.SuccessfulMounts)
	require.Zero(t, snap.FailedMounts)
}

// TestMountPartitionsSkipsPartitionWithNoContributionWithoutTouchingStats
// pins the other half of spec.md §8 S4: the mount point is distinct, but no
// module contributes anything to it, so mountOnePartition must never reach
// the tmpfs/bind-mount steps and stats must stay untouched.
func TestMountPartitionsSkipsPartitionWithNoContributionWithoutTouchingStats(t *testing.T) {
	t.Parallel()

	withFakeMountTable(t, "/vendor")

	stats := NewStatistics()
	opts := Options{Stats: stats, ScratchBase: t.TempDir()}

	partition := PartitionInfo{Name: "vendor", MountPoint: "/vendor"}

	emptyModuleDir := t.TempDir()
	modules := []Module{{ID: "mod1", SourcePath: emptyModuleDir, Mode: StrategyMagic}}

	err := MountPartitions(opts, []PartitionInfo{partition}, modules)
	require.NoError(t, err)

	snap := stats.Snapshot()
	require.Zero(t, snap.TotalMounts)
	require.Zero(t, snap.SuccessfulMounts)
	require.Zero(t, snap.FailedMounts)
}

// TestMountPartitionsMultiplePartitionsOnlyCountsAttemptedOnes combines a
// skipped partition with one that is attempted (which needs root to mount
// the scratch tmpfs, so the test is skipped otherwise), verifying the skip
// does not leak into the counters for the partition that was genuinely
// attempted.
func TestMountPartitionsMultiplePartitionsOnlyCountsAttemptedOnes(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("tmpfs mount requires root")
	}

	t.Parallel()

	withFakeMountTable(t, "/vendor")

	stats := NewStatistics()
	opts := Options{Stats: stats, ScratchBase: t.TempDir()}

	skipped := PartitionInfo{Name: "system", MountPoint: "/system"}
	attempted := PartitionInfo{Name: "vendor", MountPoint: "/vendor"}

	moduleDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(moduleDir, "vendor", "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "vendor", "etc", "hosts"), []byte("x"), 0o644))

	modules := []Module{{ID: "mod1", SourcePath: moduleDir, Mode: StrategyMagic}}

	_ = MountPartitions(opts, []PartitionInfo{skipped, attempted}, modules)

	snap := stats.Snapshot()
	require.Equal(t, int64(1), snap.TotalMounts)
}
