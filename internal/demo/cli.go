package demo

import (
	"fmt"
	"os"

	"github.com/okian/huddle/pkg/logger"
)

// SetupLogging initializes the structured logger for the demo binary.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "info"
	if verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		return fmt.Errorf("failed to set log level: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the demo tool.
func ShowHelp() {
	os.Stdout.WriteString(`Huddle Demo
===========

Runs the win probability engine end to end in one process: publishes a
synthetic live packet stream, replays a fixture game to an in-process
subscriber and verifies the event counts that came out the other side.

Usage:
  demo [flags]

Flags:
  -games     Number of live contests to simulate (default 3)
  -packets   Raw packets published per contest (default 20)
  -plays     Plays in the replay fixture game (default 12)
  -pace      Replay pace multiplier (default 4.0)
  -seed      PRNG seed for the packet generator (default 42)
  -query     Play search query demonstrated at the end (default "pass")
  -timeout   Overall run deadline (default 2m)
  -verbose   Enable verbose logging
  -help      Show this help

Examples:
  demo
  demo -games 10 -packets 50 -plays 40 -pace 8
  demo -seed 7 -verbose
`)
}
