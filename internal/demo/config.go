package demo

import "time"

// Config holds configuration for the demo run.
type Config struct {
	Games          int           // Number of live contests to simulate
	PacketsPerGame int           // Raw packets published per contest
	Plays          int           // Plays in the replay fixture game
	Pace           float64       // Replay pace multiplier
	Seed           int64         // PRNG seed for the packet generator
	SearchQuery    string        // Play search query demonstrated at the end
	Timeout        time.Duration // Overall run deadline
	Verbose        bool          // Enable verbose logging
}

// Stats holds demo run statistics.
type Stats struct {
	PacketsPublished int
	GameStateEvents  int
	PredictionEvents int
	ShapEvents       int
	TimelineEvents   int
	WinProbEvents    int
	SearchMatches    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
