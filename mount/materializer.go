//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Materialize walks root depth-first, creating the directory skeleton for
// every node that must be owned (MustMaterialize) directly under scratch,
// and staging a bind-mount request for every leaf and every pass-through
// directory.
//
// The scratch tree ends up holding only directories and empty placeholder
// files: the engine never copies bytes. A file leaf's content becomes
// visible only once its staged op is executed as a bind mount by the
// Orchestrator. Symlinks are the one leaf kind materialised directly (no
// bind mount is needed for a symlink).
//
// Materialize never issues mount syscalls itself; it returns the staged
// ops for the Orchestrator to execute in the given order (parents before
// children, guaranteed by the pre-order traversal).
//
// stats receives the symlinks_created counter directly, since a symlink
// leaf is created here and never appears in the returned StagedOp slice for
// the Orchestrator to count later. A nil stats disables accounting, mirroring
// the nil-is-disabled convention used for logger throughout this package.
func Materialize(logger *zap.Logger, stats *Statistics, root *MergeNode, scratch string) ([]StagedOp, error) {
	logger = nopIfNil(logger)
	stats = statsOrNew(stats)

	var ops []StagedOp

	if err := materializeNode(logger, stats, root, scratch, "", &ops); err != nil {
		return ops, err
	}

	return ops, nil
}

func materializeNode(logger *zap.Logger, stats *Statistics, node *MergeNode, scratch, relPath string, ops *[]StagedOp) error {
	target := filepath.Join(scratch, relPath)

	switch node.Kind {
	case NodeDir:
		if !node.MustMaterialize {
			*ops = append(*ops, StagedOp{Source: node.SourcePath, Target: target, Recursive: true, Kind: OpDir})
			return nil
		}

		if err := os.MkdirAll(target, 0o755); err != nil {
			return errors.Wrapf(err, "create scratch directory %q", target)
		}

		CloneAttr(logger, node.SourcePath, target)

		names := sortedChildNames(node.Children)
		for _, name := range names {
			child := node.Children[name]
			if err := materializeNode(logger, stats, child, scratch, filepath.Join(relPath, name), ops); err != nil {
				if SymlinkSkipped(err) {
					continue
				}

				return err
			}
		}

		return nil

	case NodeFile:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "create placeholder file %q", target)
		}
		_ = f.Close()

		*ops = append(*ops, StagedOp{Source: node.SourcePath, Target: target, Recursive: false, Kind: OpFile})

		return nil

	case NodeSymlink:
		if !IsSafeSymlink(node.SourcePath, node.ModuleRoot) {
			logger.Warn("skipping unsafe symlink", zap.String("source", node.SourcePath))
			return errSkippedSymlink
		}

		linkTarget, err := os.Readlink(node.SourcePath)
		if err != nil {
			return errors.Wrapf(err, "read symlink %q", node.SourcePath)
		}

		if err := os.Symlink(linkTarget, target); err != nil {
			return errors.Wrapf(err, "create symlink %q", target)
		}

		CloneAttr(logger, node.SourcePath, target)
		stats.incSymlinks()

		return nil

	case NodeWhiteout:
		if err := os.RemoveAll(target); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "apply whiteout %q", target)
		}

		return nil

	default:
		return errors.Errorf("materialize: unknown node kind %v at %q", node.Kind, target)
	}
}

// errSkippedSymlink is a sentinel returned by materializeNode for an unsafe
// symlink. The Orchestrator (or a direct Materialize caller wanting partial
// overlays) treats it as a per-leaf skip, not a fatal error for the whole
// partition; see SymlinkSkipped.
var errSkippedSymlink = errors.New("unsafe symlink skipped")

// SymlinkSkipped reports whether err (as returned from Materialize) denotes
// an unsafe symlink that was skipped rather than a structural failure.
func SymlinkSkipped(err error) bool {
	return errors.Is(err, errSkippedSymlink)
}

func sortedChildNames(children map[string]*MergeNode) []string {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
