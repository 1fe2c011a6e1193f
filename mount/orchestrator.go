//go:build linux

package mount

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Options configures a MountPartitions run.
type Options struct {
	// Logger receives structured progress events. Nil disables logging.
	Logger *zap.Logger

	// Stats accumulates counters across the run. Nil disables accounting.
	Stats *Statistics

	// ScratchBase is the parent directory under which each partition's
	// per-partition tmpfs is mounted (e.g. /dev/hymount). The engine creates
	// one subdirectory per partition below it.
	ScratchBase string

	// DisableUmount, when true, leaves each partition's scratch tmpfs
	// mounted at its staging path after the scratch root has been bound onto
	// the live mount point, so the staged tree can be inspected. When false,
	// the staging mount is lazily detached once that bind succeeds; the
	// kernel keeps the tree alive under the partition's mount point.
	DisableUmount bool

	// MaxMountRetries bounds MountWithRetry's attempts for the tmpfs mount
	// itself. Zero selects a default of 3.
	MaxMountRetries int
}

// MountPartitions materialises and binds the magic-mount overlay for every
// partition in partitions, in order, using the modules contributing to
// StrategyMagic. A failure on one partition is recorded and does not abort
// the remaining partitions; the returned error, if non-nil, is a
// *github.com/hashicorp/go-multierror.Error aggregating every partition
// failure.
func MountPartitions(opts Options, partitions []PartitionInfo, modules []Module) error {
	logger := nopIfNil(opts.Logger)
	stats := opts.Stats

	if stats == nil {
		stats = NewStatistics()
	}

	if opts.MaxMountRetries <= 0 {
		opts.MaxMountRetries = 3
	}

	var failures *multierror.Error

	for _, partition := range partitions {
		skipped, err := mountOnePartition(logger, stats, opts, partition, modules)
		if skipped {
			// spec.md §8 S4: a partition no module contributes to (or one
			// whose configured mount point is not actually distinct) is
			// never attempted, so its stats stay untouched.
			continue
		}

		stats.incTotal()

		if err != nil {
			stats.incFailed()
			logger.Error("partition mount failed", zap.String("partition", partition.Name), zap.Error(err))
			failures = multierror.Append(failures, errors.Wrapf(err, "partition %s", partition.Name))

			continue
		}

		stats.incSuccessful()
	}

	return failures.ErrorOrNil()
}

// MountPartitionsAuto detects the live partition set via DetectPartitions
// and mounts StandardPartitions plus any extra partitions found, skipping
// partitions not present on this device.
func MountPartitionsAuto(opts Options, modules []Module) error {
	logger := nopIfNil(opts.Logger)

	detected := DetectPartitions(logger)

	byName := make(map[string]PartitionInfo, len(detected))
	for _, p := range detected {
		byName[p.Name] = p
	}

	var partitions []PartitionInfo

	for _, name := range StandardPartitions {
		if p, ok := byName[name]; ok {
			partitions = append(partitions, p)
		}
	}

	for _, name := range GetExtraPartitions(detected) {
		partitions = append(partitions, byName[name])
	}

	return MountPartitions(opts, partitions, modules)
}

// mountOnePartition runs the seven-step pipeline from spec.md §4.G for a
// single partition: plan, size, create scratch tmpfs, materialise, bind
// every staged op, make the scratch root visible at the partition's mount
// point, and (unless DisableUmount) lazily detach the scratch staging mount.
//
// The first return value reports whether the partition was skipped outright
// (not a distinct mount point, or no module contributes to it) rather than
// attempted; callers must not touch total/successful/failed stats for a
// skipped partition (spec.md §8 S4).
func mountOnePartition(logger *zap.Logger, stats *Statistics, opts Options, partition PartitionInfo, modules []Module) (bool, error) {
	if !IsPartitionMountPoint(partition.MountPoint) {
		logger.Debug("skipping partition whose mount point is not a distinct mount",
			zap.String("partition", partition.Name), zap.String("mount_point", partition.MountPoint))
		return true, nil
	}

	fsys := afero.NewOsFs()

	root, planErr := BuildTrie(logger, partition.Name, partition.MountPoint, modules, fsys)
	if planErr != nil {
		logger.Warn("merge trie built with warnings", zap.String("partition", partition.Name), zap.Error(planErr))
	}

	if !root.MustMaterialize {
		logger.Debug("no module touches partition, skipping", zap.String("partition", partition.Name))
		return true, nil
	}

	scratch := filepath.Join(opts.ScratchBase, partition.Name)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return false, errors.Wrapf(err, "create scratch root %q", scratch)
	}

	size := GetOptimalTmpfsSize(partition.MountPoint, logger)
	tmpfsData := "size=" + strconv.FormatUint(size, 10)

	if err := MountWithRetry(logger, "tmpfs", scratch, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, tmpfsData, opts.MaxMountRetries); err != nil {
		return false, errors.Wrap(err, "mount scratch tmpfs")
	}

	stats.incTmpfs()

	ops, materializeErr := Materialize(logger, stats, root, scratch)
	if materializeErr != nil && !SymlinkSkipped(materializeErr) {
		return false, errors.Wrap(materializeErr, "materialize scratch tree")
	}

	for _, op := range ops {
		if err := executeStagedOp(logger, stats, op); err != nil {
			logger.Warn("staged op failed", zap.String("target", op.Target), zap.Error(err))
		}
	}

	if ok := Bind(logger, scratch, partition.MountPoint, true); !ok {
		return false, errors.Errorf("bind scratch root %q onto %q", scratch, partition.MountPoint)
	}

	if !opts.DisableUmount {
		if err := unix.Unmount(scratch, unix.MNT_DETACH); err != nil {
			logger.Warn("lazy unmount of scratch staging mount failed",
				zap.String("partition", partition.Name), zap.Error(err))
		}
	}

	return false, nil
}

func executeStagedOp(logger *zap.Logger, stats *Statistics, op StagedOp) error {
	switch op.Kind {
	case OpDir:
		if !Bind(logger, op.Source, op.Target, op.Recursive) {
			return errors.Errorf("bind directory %q onto %q", op.Source, op.Target)
		}

		stats.incDirs()

	case OpFile:
		if !Bind(logger, op.Source, op.Target, false) {
			return errors.Errorf("bind file %q onto %q", op.Source, op.Target)
		}

		stats.incFiles()

	default:
		return errors.Errorf("unknown staged op kind %v", op.Kind)
	}

	return nil
}

