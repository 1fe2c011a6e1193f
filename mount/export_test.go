//go:build linux

package mount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportPartitionsJSON(t *testing.T) {
	t.Parallel()

	data, err := ExportPartitionsJSON([]PartitionInfo{
		{Name: "system", MountPoint: "/system", FSType: "ext4", IsReadOnly: true},
	})
	require.NoError(t, err)

	var out []partitionJSON
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	require.Equal(t, "system", out[0].Name)
	require.True(t, out[0].IsReadOnly)
}

func TestExportMountStatsJSON(t *testing.T) {
	t.Parallel()

	s := NewStatistics()
	s.incTotal()
	s.incSuccessful()

	data, err := ExportMountStatsJSON(s)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Equal(t, int64(1), snap.TotalMounts)
}

func TestReadSELinuxStatusHandlesMissingFile(t *testing.T) {
	t.Parallel()

	// On a non-SELinux test host /sys/fs/selinux/enforce does not exist;
	// the function must degrade to "Unknown" rather than error.
	status := readSELinuxStatus()
	require.Contains(t, []string{"Unknown", "Enforcing", "Permissive"}, status)
}

func TestExportSystemInfoJSONIncludesMountBaseStatsAndPartitions(t *testing.T) {
	t.Parallel()

	stats := NewStatistics()
	stats.incTotal()
	stats.incSuccessful()

	partitions := []PartitionInfo{{Name: "vendor", MountPoint: "/vendor", FSType: "ext4", IsReadOnly: true}}

	data, err := ExportSystemInfoJSON("/dev/hymount", stats, partitions)
	require.NoError(t, err)

	var out SystemInfo
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "/dev/hymount", out.MountBase)
	require.Equal(t, int64(1), out.Stats.TotalMounts)
	require.Len(t, out.Partitions, 1)
	require.Equal(t, "vendor", out.Partitions[0].Name)
}
