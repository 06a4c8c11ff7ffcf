package flamegraph

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	log "github.com/sirupsen/logrus"
)

// configureLogging sets the global logrus level from a quiet flag and a
// repeatable verbose count, matching pmu-checker's TextFormatter idiom.
// -q drops to ErrorLevel; each -v steps up one level past the default Info,
// topping out at Trace.
func configureLogging(quiet bool, verboseCount int) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})

	switch {
	case quiet:
		log.SetLevel(log.ErrorLevel)
	case verboseCount >= 2:
		log.SetLevel(log.TraceLevel)
	case verboseCount == 1:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
