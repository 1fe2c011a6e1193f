//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeModuleProp(t *testing.T, dir, id, name, description string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "id=" + id + "\nname=" + name + "\ndescription=" + description + "\nversion=v1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.prop"), []byte(content), 0o644))
}

func TestReadModuleProp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeModuleProp(t, dir, "busybox", "BusyBox", "Provides busybox")

	prop, err := ReadModuleProp(filepath.Join(dir, "module.prop"))
	require.NoError(t, err)
	require.Equal(t, "busybox", prop.ID)
	require.Equal(t, "BusyBox", prop.Name)
	require.Equal(t, "Provides busybox", prop.Description)
}

func TestAnnotateDescriptionReplacesPreviousGlyph(t *testing.T) {
	t.Parallel()

	require.Equal(t, glyphMounted+" Provides busybox", AnnotateDescription("Provides busybox", true))
	require.Equal(t, glyphFailed+" Provides busybox", AnnotateDescription(glyphMounted+" Provides busybox", false))
}

func TestContributesToPartitionTrueForNestedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "system", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system", "bin", "toolbox"), []byte("x"), 0o644))

	ok, err := ContributesToPartition(dir, "system")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestContributesToPartitionFalseForEmptyOrMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor", "empty"), 0o755))

	ok, err := ContributesToPartition(dir, "vendor")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = ContributesToPartition(dir, "product")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanModulesSkipsDirsWithoutProp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeModuleProp(t, filepath.Join(root, "mod1"), "mod1", "Mod One", "desc")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mod2_no_prop"), 0o755))

	props, err := ScanModules(root)
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.Equal(t, "mod1", props[0].ID)
}
