package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatdx/hymount/mount"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the current system and kernel capabilities relevant to mounting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit(cmd)
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			partitions := mount.DetectPartitions(logger)

			data, err := mount.ExportSystemInfoJSON(cfg.ScratchBase, mount.NewStatistics(), partitions)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return nil
		},
	}
}
