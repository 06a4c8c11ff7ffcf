package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flamegraph/internal/diff"
)

const cmdDiffName = "diff"

var (
	flagDiffNormalize bool
	flagDiffStripHex  bool
)

var diffCmd = &cobra.Command{
	Use:           fmt.Sprintf("%s <file1> <file2>", cmdDiffName),
	Short:         "Combine two folded-stack profiles into a differential folded profile",
	Example:       fmt.Sprintf("  $ %s %s before.folded after.folded > diff.folded", appName, cmdDiffName),
	RunE:          runDiff,
	PreRunE:       validateDiffFlags,
	Args:          cobra.ExactArgs(2),
	SilenceErrors: true,
}

func init() {
	diffCmd.Flags().BoolVarP(&flagDiffNormalize, "normalize", "n", false, "")
	diffCmd.Flags().BoolVarP(&flagDiffStripHex, "strip-hex", "s", false, "")

	diffCmd.SetUsageFunc(diffUsageFunc)
}

func diffUsageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	printFlagGroups(cmd, []FlagGroup{
		{GroupName: "Options", Flags: []Flag{
			{Name: "normalize", Help: "scale the first profile's counts to match the second profile's total"},
			{Name: "strip-hex", Help: "replace hex addresses with 0x... so ASLR'd stacks still merge"},
		}},
	})
	return nil
}

func validateDiffFlags(cmd *cobra.Command, args []string) error {
	for _, p := range args {
		if _, err := os.Stat(p); err != nil {
			return errors.Wrapf(err, "cannot read %s", p)
		}
	}
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	before, err := os.Open(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", args[0])
	}
	defer before.Close()

	after, err := os.Open(args[1])
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", args[1])
	}
	defer after.Close()

	return diff.FromReaders(diff.Options{
		Normalize: flagDiffNormalize,
		StripHex:  flagDiffStripHex,
	}, before, after, os.Stdout)
}
