package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// appName is used in usage/example text the same way the teacher's
// internal/common.AppName is used throughout its own subcommands.
const appName = "flamegraph"

// Flag and FlagGroup mirror internal/common's shape so every subcommand's
// usageFunc can print a grouped flag listing the same way the teacher's
// cmd/flame and cmd/flamegraph (the original, PerfSpect-specific command
// this package replaces) do. Kept local rather than importing
// internal/common: that package's FlagGroup travels with an entire
// remote-target/report machinery this toolchain has no use for.
type Flag struct {
	Name string
	Help string
}

type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// printFlagGroups renders groups the way every teacher subcommand's
// usageFunc does, followed by the parent's persistent (global) flags.
func printFlagGroups(cmd *cobra.Command, groups []FlagGroup) {
	cmd.Println("Flags:")
	for _, group := range groups {
		cmd.Printf("  %s:\n", group.GroupName)
		for _, f := range group.Flags {
			def := ""
			if lookup := cmd.Flags().Lookup(f.Name); lookup != nil && lookup.DefValue != "" {
				def = fmt.Sprintf(" (default: %s)", lookup.DefValue)
			}
			cmd.Printf("    --%-20s %s%s\n", f.Name, f.Help, def)
		}
	}
	if cmd.Parent() == nil {
		return
	}
	cmd.Println("\nGlobal Flags:")
	cmd.Parent().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
		def := ""
		if pf.DefValue != "" {
			def = fmt.Sprintf(" (default: %s)", pf.DefValue)
		}
		cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, def)
	})
}
