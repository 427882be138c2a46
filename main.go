// SPDX-License-Identifier: MIT
package main

import (
	"os"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/cmd"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/build"
)

// main is the entry point for the vitals engine. The program flow is
// divided into three phases, all driven from the selected subcommand:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Design filters and build the processor
//
// 2. Concurrent Phase (Hot Path):
//   - Worker goroutine owns the processor
//   - Batches arrive over NATS, results fan out to websocket, UDP and NATS
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop capture and export the session
//   - Close transports and recordings
func main() {
	// Build information is injected with -ldflags; development builds run
	// with "unknown" values.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v, using development build information", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Errorf("%v", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}
