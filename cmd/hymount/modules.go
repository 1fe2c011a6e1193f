package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anatdx/hymount/mount"
)

// resolveModules builds the mount.Module set hymount will plan against.
//
// If cfg.Modules is non-empty it is used verbatim (explicit configuration
// wins). Otherwise every subdirectory of cfg.ModulesRoot carrying a
// module.prop is treated as a module in StrategyMagic mode, discovery order
// given by ScanModules (alphabetical by directory name).
func resolveModules(cfg Config) ([]mount.Module, error) {
	if len(cfg.Modules) > 0 {
		modules := make([]mount.Module, len(cfg.Modules))
		for i, m := range cfg.Modules {
			modules[i] = mount.Module{
				ID:         m.ID,
				SourcePath: m.SourcePath,
				Mode:       resolveStrategy(m.Mode),
			}
		}

		return modules, nil
	}

	props, err := mount.ScanModules(cfg.ModulesRoot)
	if err != nil {
		return nil, err
	}

	modules := make([]mount.Module, len(props))
	for i, p := range props {
		modules[i] = mount.Module{
			ID:         p.ID,
			SourcePath: filepath.Join(cfg.ModulesRoot, p.ID),
			Mode:       mount.StrategyMagic,
		}
	}

	return modules, nil
}

// annotateModuleProps rewrites the module.prop description of every module
// in modules with a glyph for the overall mount outcome, matching the original agent's
// post-run status report. Read/write failures are surfaced as warnings on
// stderr rather than failing the mount command, since a module.prop that
// cannot be rewritten does not undo a mount that already succeeded.
func annotateModuleProps(cmd *cobra.Command, modules []mount.Module, mounted bool) {
	for _, m := range modules {
		propPath := filepath.Join(m.SourcePath, "module.prop")
		if err := mount.WriteModuleProp(propPath, mounted); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "annotate %s: %v\n", propPath, err)
		}
	}
}

func resolveStrategy(mode string) mount.Strategy {
	switch mount.Strategy(mode) {
	case mount.StrategyMagic, mount.StrategyOverlay, mount.StrategyHymoFS:
		return mount.Strategy(mode)
	default:
		return mount.StrategyMagic
	}
}
