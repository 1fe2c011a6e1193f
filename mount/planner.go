//go:build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BuildTrie walks every module's contribution to partition at mountPoint and
// builds a merge trie recording, for each path, the winning source and
// whether the containing directory must become a materialised (owned)
// directory rather than a pass-through bind of the original.
//
// Modules are walked in order; a later module overwrites an earlier one at
// the same path (last-writer-wins, mirroring spec.md §4.E's replacement
// policy). Conflicting entry kinds at the same path and paths that fail
// IsSafePath are skipped and recorded as warnings in the returned error
// (never fatal) rather than aborting the whole partition. IsSafePath
// canonicalises on the real disk, so that check runs only when fsys is an
// *afero.OsFs.
//
// fs abstracts module-tree reads so planning can be unit-tested against an
// in-memory filesystem (afero.NewMemMapFs()) without touching disk; in
// production callers pass afero.NewOsFs().
func BuildTrie(logger *zap.Logger, partition, mountPoint string, modules []Module, fsys afero.Fs) (*MergeNode, error) {
	logger = nopIfNil(logger)

	root := newDirNode(mountPoint)

	var warnings *multierror.Error

	for _, module := range modules {
		if module.Mode != StrategyMagic {
			continue
		}

		moduleRoot := filepath.Join(module.SourcePath, partition)

		info, err := fsys.Stat(moduleRoot)
		if err != nil || !info.IsDir() {
			continue
		}

		if err := walkModule(logger, root, module.ID, moduleRoot, moduleRoot, mountPoint, fsys, &warnings); err != nil {
			warnings = multierror.Append(warnings, err)
		}
	}

	pruneUnmaterialized(root)

	return root, warnings.ErrorOrNil()
}

// walkModule recursively inserts entries found under dir (a subtree of
// trueModuleRoot) into the trie rooted at root. trueModuleRoot stays fixed
// across the recursion and is used both for the escape check and as the
// symlink-confinement boundary recorded on each inserted node.
func walkModule(logger *zap.Logger, root *MergeNode, moduleID, dir, trueModuleRoot, mountPoint string, fsys afero.Fs, warnings **multierror.Error) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return errorf("read module dir %q: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	_, onDisk := fsys.(*afero.OsFs)

	for _, entry := range entries {
		relPath := entry.Name()
		absModulePath := filepath.Join(dir, relPath)

		if onDisk && !IsSafePath(trueModuleRoot, absModulePath) {
			logger.Warn("rejecting path escaping module root", zap.String("module", moduleID), zap.String("path", absModulePath))
			*warnings = multierror.Append(*warnings, errorf("module %s: path %q escapes module root", moduleID, absModulePath))

			continue
		}

		kind := classifyEntry(entry)

		if kind == NodeDir {
			if err := insertDir(logger, root, moduleID, relPath, absModulePath, mountPoint, trueModuleRoot, warnings); err != nil {
				return err
			}

			// insertDir leaves the existing node untouched on a kind
			// conflict (e.g. an earlier module placed a file here); only
			// recurse when the child actually is a directory, or a nil
			// Children map on a non-Dir node would panic on insertion.
			if child := dirAt(root, relPath); child != nil && child.Kind == NodeDir {
				if err := walkModule(logger, child, moduleID, absModulePath, trueModuleRoot, filepath.Join(mountPoint, relPath), fsys, warnings); err != nil {
					return err
				}
			}

			continue
		}

		insertLeaf(logger, root, moduleID, relPath, absModulePath, kind, trueModuleRoot, warnings)
	}

	return nil
}

// insertDir ensures a Dir node exists for name under parent, creating an
// ancestor placeholder if necessary and resolving a same-path kind conflict
// by keeping the earlier structure and recording a warning.
func insertDir(logger *zap.Logger, parent *MergeNode, moduleID, name, absModulePath, originalPath, moduleRoot string, warnings **multierror.Error) error {
	existing, ok := parent.Children[name]
	if !ok {
		child := newDirNode(filepath.Join(originalPath, name))
		child.Origin = ModuleOrigin(moduleID)
		child.MustMaterialize = true
		child.ModuleRoot = moduleRoot
		parent.Children[name] = child
		markAncestorsMaterialized(parent)

		return nil
	}

	if existing.Kind != NodeDir {
		logger.Warn("module introduces directory where an earlier module placed a file/symlink",
			zap.String("module", moduleID), zap.String("path", absModulePath))
		*warnings = multierror.Append(*warnings, errorf("module %s: directory/file conflict at %q", moduleID, absModulePath))

		return nil
	}

	existing.MustMaterialize = true
	markAncestorsMaterialized(parent)

	return nil
}

func insertLeaf(logger *zap.Logger, parent *MergeNode, moduleID, name, absModulePath string, kind NodeKind, moduleRoot string, warnings **multierror.Error) {
	if existing, ok := parent.Children[name]; ok {
		if existing.Kind == NodeDir {
			logger.Warn("module introduces file/symlink where an earlier module placed a directory",
				zap.String("module", moduleID), zap.String("path", absModulePath))
			*warnings = multierror.Append(*warnings, errorf("module %s: file/directory conflict at %q", moduleID, absModulePath))

			return
		}

		if !existing.Origin.IsOriginal() {
			logger.Warn("module shadows an earlier module's file/symlink at the same path",
				zap.String("module", moduleID), zap.String("shadowed_module", existing.Origin.ModuleID()),
				zap.String("path", absModulePath))
		}
	}

	parent.Children[name] = &MergeNode{
		Kind:       kind,
		Origin:     ModuleOrigin(moduleID),
		SourcePath: absModulePath,
		ModuleRoot: moduleRoot,
	}

	markAncestorsMaterialized(parent)
}

// dirAt returns the (already-inserted) Dir child named name under parent.
func dirAt(parent *MergeNode, name string) *MergeNode {
	return parent.Children[name]
}

// markAncestorsMaterialized marks node, and implicitly every ancestor
// reachable by the caller re-walking up from the root, as owned. Since the
// planner recurses top-down and calls this on the immediate parent at each
// insertion, every ancestor on the path from root to the inserted leaf ends
// up materialised by the time its own insertDir call runs.
func markAncestorsMaterialized(node *MergeNode) {
	node.MustMaterialize = true
}

// pruneUnmaterialized drops children of any Dir node that ended up with
// MustMaterialize == false: such a subtree can be served by a single
// recursive bind of its original directory, and the invariant in spec.md §3
// requires that no descendant of an unmaterialised Dir carries a module
// origin (which pruneUnmaterialized enforces structurally by discarding the
// children rather than leaving stale entries in the trie).
func pruneUnmaterialized(node *MergeNode) {
	if node.Kind != NodeDir {
		return
	}

	if !node.MustMaterialize {
		node.Children = nil
		return
	}

	for _, child := range node.Children {
		pruneUnmaterialized(child)
	}
}

// classifyEntry classifies a module-tree directory entry from the mode bits
// of the os.FileInfo afero.ReadDir already returned, so no second stat is
// issued here.
func classifyEntry(entry os.FileInfo) NodeKind {
	switch {
	case entry.IsDir():
		return NodeDir
	case entry.Mode()&os.ModeSymlink != 0:
		return NodeSymlink
	default:
		return NodeFile
	}
}

func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
