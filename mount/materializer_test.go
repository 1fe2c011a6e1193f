//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaterializeCreatesSkeletonAndStagesOps(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	moduleDir := t.TempDir()
	sourceFile := filepath.Join(moduleDir, "build.prop")
	require.NoError(t, os.WriteFile(sourceFile, []byte("x"), 0o644))

	root := newDirNode("/system")
	root.MustMaterialize = true
	root.Children["build.prop"] = &MergeNode{
		Kind:       NodeFile,
		Origin:     ModuleOrigin("mod1"),
		SourcePath: sourceFile,
	}

	untouched := newDirNode("/system/untouched")
	root.Children["untouched"] = untouched

	ops, err := Materialize(nil, nil, root, scratch)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(scratch, "build.prop"))

	var fileOp, dirOp *StagedOp
	for i := range ops {
		switch ops[i].Kind {
		case OpFile:
			fileOp = &ops[i]
		case OpDir:
			dirOp = &ops[i]
		}
	}

	require.NotNil(t, fileOp)
	require.Equal(t, sourceFile, fileOp.Source)
	require.False(t, fileOp.Recursive)

	require.NotNil(t, dirOp)
	require.Equal(t, "/system/untouched", dirOp.Source)
	require.True(t, dirOp.Recursive)
}

func TestMaterializeSymlinkCreatedDirectly(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	moduleDir := t.TempDir()
	linkSrc := filepath.Join(moduleDir, "alias")
	require.NoError(t, os.Symlink("/system/bin/toolbox", linkSrc))

	root := newDirNode("/system")
	root.MustMaterialize = true
	root.Children["alias"] = &MergeNode{
		Kind:       NodeSymlink,
		Origin:     ModuleOrigin("mod1"),
		SourcePath: linkSrc,
		ModuleRoot: moduleDir,
	}

	stats := NewStatistics()

	ops, err := Materialize(nil, stats, root, scratch)
	require.NoError(t, err)
	require.Empty(t, ops)

	target, err := os.Readlink(filepath.Join(scratch, "alias"))
	require.NoError(t, err)
	require.Equal(t, "/system/bin/toolbox", target)
	require.Equal(t, int64(1), stats.Snapshot().SymlinksCreated)
}

func TestMaterializeSkipsUnsafeSymlinkWithoutAbortingSiblings(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	moduleDir := t.TempDir()

	evilLink := filepath.Join(moduleDir, "evil")
	require.NoError(t, os.Symlink("../../../etc/passwd", evilLink))

	sourceFile := filepath.Join(moduleDir, "build.prop")
	require.NoError(t, os.WriteFile(sourceFile, []byte("x"), 0o644))

	root := newDirNode("/system")
	root.MustMaterialize = true
	root.Children["evil"] = &MergeNode{
		Kind:       NodeSymlink,
		Origin:     ModuleOrigin("mod1"),
		SourcePath: evilLink,
		ModuleRoot: moduleDir,
	}
	root.Children["build.prop"] = &MergeNode{
		Kind:       NodeFile,
		Origin:     ModuleOrigin("mod1"),
		SourcePath: sourceFile,
	}

	ops, err := Materialize(nil, nil, root, scratch)
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(scratch, "evil"))
	require.FileExists(t, filepath.Join(scratch, "build.prop"))
	require.Len(t, ops, 1)
	require.Equal(t, OpFile, ops[0].Kind)
}

func TestMaterializeWhiteoutRemovesScratchEntry(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "stale"), []byte("x"), 0o644))

	root := newDirNode("/system")
	root.MustMaterialize = true
	root.Children["stale"] = &MergeNode{Kind: NodeWhiteout}

	_, err := Materialize(nil, nil, root, scratch)
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(scratch, "stale"))
}
