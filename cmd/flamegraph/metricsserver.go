package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flamegraph/internal/metrics"
)

const cmdMetricsServerName = "metrics-server"

var flagListenAddr string

var metricsServerCmd = &cobra.Command{
	Use:           fmt.Sprintf("%s --listen <addr>", cmdMetricsServerName),
	Short:         "Run a Prometheus metrics endpoint exposing collapse-pipeline gauges",
	Example:       fmt.Sprintf("  $ %s %s --listen :9090 &\n  $ %s collapse --format perf --nthreads 8 big.script > out.folded", appName, cmdMetricsServerName, appName),
	RunE:          runMetricsServer,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

func init() {
	metricsServerCmd.Flags().StringVar(&flagListenAddr, "listen", ":9090", "")

	metricsServerCmd.SetUsageFunc(metricsServerUsageFunc)
}

func metricsServerUsageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	printFlagGroups(cmd, []FlagGroup{
		{GroupName: "Options", Flags: []Flag{
			{Name: "listen", Help: "address to serve /metrics on"},
		}},
	})
	return nil
}

// runMetricsServer brings up the optional Prometheus endpoint and blocks
// until interrupted. Useful for watching the gauges against a separate,
// concurrently running collapse invocation (collapse --metrics-listen
// serves the same gauges in-process, live, for the duration of that one
// run; this subcommand is the standalone equivalent for scripting or
// dashboards that expect metrics-server to outlive any single collapse).
func runMetricsServer(cmd *cobra.Command, args []string) error {
	collector := metrics.NewCollector()
	if err := collector.RegisterWith(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	server := metrics.StartServer(flagListenAddr)
	log.Infof("metrics server listening on %s", flagListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down metrics server")
	return metrics.StopServer(ctx, server)
}
