package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatdx/hymount/mount"
)

func newMountCmd() *cobra.Command {
	var statsPath string

	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Plan and execute the magic-mount overlay for every detected partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit(cmd)
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			modules, err := resolveModules(cfg)
			if err != nil {
				return fmt.Errorf("resolving modules: %w", err)
			}

			stats := mount.NewStatistics()

			opts := mount.Options{
				Logger:          logger,
				Stats:           stats,
				ScratchBase:     cfg.ScratchBase,
				DisableUmount:   cfg.DisableUmount,
				MaxMountRetries: cfg.MaxMountRetries,
			}

			err = mount.MountPartitionsAuto(opts, modules)

			snapshot := stats.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "mounted %d/%d partitions (%.1f%% success)\n",
				snapshot.SuccessfulMounts, snapshot.TotalMounts, snapshot.SuccessRate)

			if statsPath != "" {
				if saveErr := stats.SaveMountStatistics(statsPath, logger); saveErr != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), saveErr)
				}
			}

			annotateModuleProps(cmd, modules, err == nil)

			return err
		},
	}

	cmd.Flags().StringVar(&statsPath, "stats-out", "", "write a JSON statistics snapshot to this path after the run")

	return cmd
}
