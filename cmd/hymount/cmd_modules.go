package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anatdx/hymount/mount"
)

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List modules that contribute to at least one partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrExit(cmd)

			props, err := mount.ScanModules(cfg.ModulesRoot)
			if err != nil {
				return fmt.Errorf("scanning modules root %s: %w", cfg.ModulesRoot, err)
			}

			for _, p := range props {
				modulePath := filepath.Join(cfg.ModulesRoot, p.ID)

				contributes, err := moduleContributesToAny(modulePath)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "check %s: %v\n", modulePath, err)
					continue
				}

				if !contributes {
					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
			}

			return nil
		},
	}
}

// moduleContributesToAny reports whether modulePath contributes to any
// standard partition. Extra, device-specific partitions are discoverable
// only via DetectPartitions, which requires a live kernel mount table; the
// listing limits itself to the StandardPartitions names.
func moduleContributesToAny(modulePath string) (bool, error) {
	for _, partition := range mount.StandardPartitions {
		ok, err := mount.ContributesToPartition(modulePath, partition)
		if err != nil {
			return false, err
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}
