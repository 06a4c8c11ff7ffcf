package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flamegraph/internal/collapse"
	"flamegraph/internal/collapse/bpftrace"
	"flamegraph/internal/collapse/dtrace"
	"flamegraph/internal/collapse/ghcprof"
	"flamegraph/internal/collapse/guess"
	"flamegraph/internal/collapse/perf"
	"flamegraph/internal/collapse/pmc"
	"flamegraph/internal/collapse/sample"
	"flamegraph/internal/collapse/vsprof"
	"flamegraph/internal/collapse/vtune"
	"flamegraph/internal/collapse/xctrace"
	"flamegraph/internal/collapse/xdebug"
	"flamegraph/internal/engine"
	"flamegraph/internal/metrics"
	"flamegraph/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
)

const cmdCollapseName = "collapse"

var formatOptions = []string{
	"perf", "dtrace", "sample", "vtune", "pmc", "ghcprof", "vsprof", "xdebug", "xctrace", "bpftrace", "guess",
}

var (
	flagFormat        string
	flagQuiet         bool
	flagVerboseCount  int
	flagNthreads      int
	flagMetricsListen string

	// perf
	flagPerfPID         bool
	flagPerfTID         bool
	flagPerfAddrs       bool
	flagPerfJIT         bool
	flagPerfKernel      bool
	flagPerfAll         bool
	flagPerfEventFilter []string

	// dtrace
	flagIncludeOffset bool

	// sample / vtune / pmc
	flagNoModules bool

	// ghcprof
	flagGhcprofBytes bool
	flagGhcprofTicks bool

	// xdebug
	flagInternReport bool
)

var collapseCmd = &cobra.Command{
	Use:           fmt.Sprintf("%s --format <format> [input-path]", cmdCollapseName),
	Short:         "Collapse raw profiler output into folded stacks",
	Example:       fmt.Sprintf("  $ %s %s --format perf perf.script > out.folded", appName, cmdCollapseName),
	RunE:          runCollapse,
	PreRunE:       validateCollapseFlags,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
}

func init() {
	collapseCmd.Flags().StringVar(&flagFormat, "format", "", "")
	collapseCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "")
	collapseCmd.Flags().CountVarP(&flagVerboseCount, "verbose", "v", "")
	collapseCmd.Flags().IntVarP(&flagNthreads, "nthreads", "n", 1, "")
	collapseCmd.Flags().StringVar(&flagMetricsListen, "metrics-listen", "", "")

	collapseCmd.Flags().BoolVar(&flagPerfPID, "pid", false, "")
	collapseCmd.Flags().BoolVar(&flagPerfTID, "tid", false, "")
	collapseCmd.Flags().BoolVar(&flagPerfAddrs, "addrs", false, "")
	collapseCmd.Flags().BoolVar(&flagPerfJIT, "jit", false, "")
	collapseCmd.Flags().BoolVar(&flagPerfKernel, "kernel", false, "")
	collapseCmd.Flags().BoolVar(&flagPerfAll, "all", false, "")
	collapseCmd.Flags().StringSliceVar(&flagPerfEventFilter, "event-filter", nil, "")

	collapseCmd.Flags().BoolVar(&flagIncludeOffset, "includeoffset", false, "")

	collapseCmd.Flags().BoolVar(&flagNoModules, "no-modules", false, "")

	collapseCmd.Flags().BoolVar(&flagGhcprofBytes, "bytes", false, "")
	collapseCmd.Flags().BoolVar(&flagGhcprofTicks, "ticks", false, "")

	collapseCmd.Flags().BoolVarP(&flagInternReport, "intern-report", "f", false, "")

	collapseCmd.SetUsageFunc(collapseUsageFunc)
}

func collapseUsageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	printFlagGroups(cmd, getCollapseFlagGroups())
	return nil
}

func getCollapseFlagGroups() []FlagGroup {
	return []FlagGroup{
		{GroupName: "Options", Flags: []Flag{
			{Name: "format", Help: fmt.Sprintf("profiler format: %s", strings.Join(formatOptions, ", "))},
			{Name: "nthreads", Help: "worker goroutines for the parallel pipeline; 1 runs single-threaded"},
			{Name: "quiet", Help: "only log errors"},
			{Name: "verbose", Help: "increase log verbosity; repeatable"},
			{Name: "metrics-listen", Help: "serve live pipeline gauges on this address for the duration of this run (e.g. :9090)"},
		}},
		{GroupName: "perf", Flags: []Flag{
			{Name: "pid", Help: "include PID in the root frame"},
			{Name: "tid", Help: "include TID and PID in the root frame"},
			{Name: "addrs", Help: "include raw addresses where symbols can't be found"},
			{Name: "jit", Help: "annotate JIT functions with _[j]"},
			{Name: "kernel", Help: "annotate kernel functions with _[k]"},
			{Name: "all", Help: "alias for --pid --tid --addrs --jit --kernel"},
			{Name: "event-filter", Help: "comma-separated list of perf event types to keep"},
		}},
		{GroupName: "dtrace", Flags: []Flag{
			{Name: "includeoffset", Help: "keep function offsets, except on the leaf frame"},
		}},
		{GroupName: "sample / vtune / pmc", Flags: []Flag{
			{Name: "no-modules", Help: "omit module names from function names"},
		}},
		{GroupName: "ghcprof", Flags: []Flag{
			{Name: "bytes", Help: "use the bytes column instead of %time"},
			{Name: "ticks", Help: "use the ticks column instead of %time"},
		}},
		{GroupName: "xdebug", Flags: []Flag{
			{Name: "intern-report", Help: "print a completion note to stderr when done (the interning table size is not reported)"},
		}},
	}
}

func validateCollapseFlags(cmd *cobra.Command, args []string) error {
	if flagFormat == "" {
		return errors.New("--format is required")
	}
	if !slices.Contains(formatOptions, flagFormat) {
		return errors.Errorf("format options are: %s", strings.Join(formatOptions, ", "))
	}
	if !cmd.Flags().Changed("nthreads") && defaults.Nthreads > 0 {
		flagNthreads = defaults.Nthreads
	}
	if flagNthreads < 1 {
		return errors.New("--nthreads must be 1 or greater")
	}
	if flagGhcprofBytes && flagGhcprofTicks {
		return errors.New("--bytes and --ticks are mutually exclusive")
	}
	configureLogging(flagQuiet, flagVerboseCount)
	return nil
}

func buildFolder() collapse.Collapser {
	switch flagFormat {
	case "perf":
		opt := perf.Options{
			IncludePID:     flagPerfPID || flagPerfAll,
			IncludeTID:     flagPerfTID || flagPerfAll,
			IncludeAddrs:   flagPerfAddrs || flagPerfAll,
			AnnotateJIT:    flagPerfJIT || flagPerfAll,
			AnnotateKernel: flagPerfKernel || flagPerfAll,
		}
		if len(flagPerfEventFilter) > 0 {
			opt.EventFilter = mapset.NewSet(flagPerfEventFilter...)
		}
		return perf.New(opt)
	case "dtrace":
		return dtrace.New(dtrace.Options{IncludeOffset: flagIncludeOffset})
	case "sample":
		return sample.New(sample.Options{NoModules: flagNoModules})
	case "vtune":
		return vtune.New(vtune.Options{NoModules: flagNoModules})
	case "pmc":
		if flagNoModules {
			log.Debug("pmc folding always drops the '@ module' part; --no-modules has no effect")
		}
		return pmc.New(pmc.Options{})
	case "ghcprof":
		opt := ghcprof.Options{Source: ghcprof.PercentTime}
		if flagGhcprofBytes {
			opt.Source = ghcprof.Bytes
		} else if flagGhcprofTicks {
			opt.Source = ghcprof.Ticks
		}
		return ghcprof.New(opt)
	case "vsprof":
		return vsprof.New(vsprof.Options{})
	case "xdebug":
		return xdebug.New(xdebug.Options{})
	case "xctrace":
		return xctrace.New(xctrace.Options{})
	case "bpftrace":
		return bpftrace.New(bpftrace.Options{})
	default:
		return guess.New(guess.Options{})
	}
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open input %s", args[0])
	}
	return f, nil
}

func runCollapse(cmd *cobra.Command, args []string) error {
	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	folder := buildFolder()
	if flagFormat == "xdebug" && flagInternReport {
		defer func() {
			fmt.Fprintln(os.Stderr, "xdebug: string interning complete")
		}()
	}

	spinner := progress.NewMultiSpinner()
	if flagVerboseCount > 0 {
		_ = spinner.AddSpinner(flagFormat)
		spinner.Start()
		_ = spinner.Status(flagFormat, "collapsing")
	}

	engineOpt := engine.Options{Nthreads: flagNthreads}
	var metricsServer *http.Server
	if flagMetricsListen != "" {
		collector := metrics.NewCollector()
		if regErr := collector.RegisterWith(prometheus.DefaultRegisterer); regErr != nil {
			return regErr
		}
		engineOpt.Metrics = collector
		metricsServer = metrics.StartServer(flagMetricsListen)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := metrics.StopServer(ctx, metricsServer); stopErr != nil {
				log.Warnf("metrics server shutdown: %v", stopErr)
			}
		}()
	}

	start := time.Now()
	err = engine.Collapse(context.Background(), folder, in, os.Stdout, engineOpt)

	if flagVerboseCount > 0 {
		if err != nil {
			_ = spinner.Status(flagFormat, "failed")
		} else {
			_ = spinner.Status(flagFormat, "done")
		}
		spinner.Finish()
	}
	if err != nil {
		return err
	}

	if flagVerboseCount > 0 {
		printCollapseSummary(time.Since(start))
	}
	return nil
}

// printCollapseSummary prints a one-line or wrapped summary depending on
// the width of the controlling terminal (stderr, so it never pollutes the
// folded-stack data written to stdout).
func printCollapseSummary(elapsed time.Duration) {
	msg := fmt.Sprintf("collapsed %s input in %s using %d thread(s)", flagFormat, elapsed.Round(time.Millisecond), flagNthreads)
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || width <= 0 || width >= len(msg) {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "collapsed %s input\nin %s\nusing %d thread(s)\n", flagFormat, elapsed.Round(time.Millisecond), flagNthreads)
}
