package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatdx/hymount/mount"
)

func newPartitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "List partitions detected from the kernel mount table",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync() //nolint:errcheck

			partitions := mount.DetectPartitions(logger)

			data, err := mount.ExportPartitionsJSON(partitions)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return nil
		},
	}
}
