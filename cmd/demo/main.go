package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/huddle/internal/demo"
)

// Default configuration constants.
const (
	defaultGames   = 3
	defaultPackets = 20
	defaultPlays   = 12
	defaultPace    = 4.0
	defaultSeed    = 42
	defaultQuery   = "pass"
	defaultTimeout = 2 * time.Minute
)

func main() {
	var (
		games   = flag.Int("games", defaultGames, "Number of live contests to simulate")
		packets = flag.Int("packets", defaultPackets, "Raw packets published per contest")
		plays   = flag.Int("plays", defaultPlays, "Plays in the replay fixture game")
		pace    = flag.Float64("pace", defaultPace, "Replay pace multiplier")
		seed    = flag.Int64("seed", defaultSeed, "PRNG seed for the packet generator")
		query   = flag.String("query", defaultQuery, "Play search query demonstrated at the end")
		timeout = flag.Duration("timeout", defaultTimeout, "Overall run deadline")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		demo.ShowHelp()
		return
	}

	if err := demo.SetupLogging(*verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config := &demo.Config{
		Games:          *games,
		PacketsPerGame: *packets,
		Plays:          *plays,
		Pace:           *pace,
		Seed:           *seed,
		SearchQuery:    *query,
		Timeout:        *timeout,
		Verbose:        *verbose,
	}

	if err := demo.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Demo failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
