// Package demo runs the engine end to end in one process: it publishes a
// synthetic live packet stream, replays a fixture game to an in-process
// subscriber and prints what came out the other side. It exists to
// exercise the whole pipeline without any external collaborators.
package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/huddle/internal/adapters/cache"
	app "github.com/okian/huddle/internal/app"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

// Demo pacing constants: fast enough to finish in seconds, slow enough
// that the replay ordering is observable in verbose logs.
const (
	demoPredictionDelay = 5 * time.Millisecond
	demoReplaySleep     = 2 * time.Millisecond
	demoExplainDelay    = 3 * time.Millisecond
	demoRefreshInterval = 2 * time.Second
	demoDriftInterval   = 5 * time.Second
	drainPollInterval   = 50 * time.Millisecond
	replayGameID        = "demo-replay"
)

// Run executes the complete demo.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("demo")

	log.Info(ctx, "starting huddle demo",
		logger.Int("games", config.Games),
		logger.Int("packetsPerGame", config.PacketsPerGame),
		logger.Int("plays", config.Plays),
		logger.Float64("pace", config.Pace),
		logger.Int64("seed", config.Seed))

	engine := app.New(
		app.WithLogger(logger.Get()),
		app.WithReplayPacing(demoPredictionDelay, demoReplaySleep),
		app.WithExplainConfig(config.Seed, 5, demoExplainDelay),
		app.WithJobIntervals(demoRefreshInterval, demoDriftInterval),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine start failed: %w", err)
	}
	defer engine.Stop()

	// Step 1: attach a live-feed subscriber before any packet flows
	live := newRecorder()
	engine.AttachLiveFeed(ctx, live)

	// Step 2: publish the synthetic live stream
	gen := newGenerator(config.Seed)
	gids := make([]string, 0, config.Games)
	for gi := 0; gi < config.Games; gi++ {
		gid := fmt.Sprintf("demo-game-%d", gi+1)
		gids = append(gids, gid)
		for _, packet := range gen.packets(gid, config.PacketsPerGame) {
			if err := engine.PublishPacket(ctx, packet); err != nil {
				return fmt.Errorf("packet publish failed: %w", err)
			}
			stats.PacketsPublished++
		}
	}

	// Step 3: wait until the pipeline has drained every contest
	if err := waitForPipeline(ctx, engine, gids); err != nil {
		return fmt.Errorf("pipeline drain failed: %w", err)
	}
	for _, gid := range gids {
		msg, err := engine.LatestWinProb(ctx, gid)
		if err != nil {
			return fmt.Errorf("latest win probability for %s: %w", gid, err)
		}
		log.Info(ctx, "smoothed answer ready",
			logger.String("gid", gid),
			logger.Float64("p_win", msg.PWin),
			logger.Float64("raw", msg.Explain.Raw))
	}

	// Step 4: ingest and replay the fixture game
	result, err := engine.IngestGame(ctx, model.IngestRequest{
		GameID:         replayGameID,
		HomeTeam:       "home",
		AwayTeam:       "away",
		IdempotencyKey: uuid.NewString(),
		Plays:          gen.plays(config.Plays),
	})
	if err != nil {
		return fmt.Errorf("fixture ingest failed: %w", err)
	}
	log.Info(ctx, "fixture game ingested",
		logger.String("gid", result.GameID),
		logger.Int("plays", result.TotalPlays))

	replaySub := newRecorder()
	if err := engine.RegisterSubscriber(ctx, replayGameID, replaySub); err != nil {
		return fmt.Errorf("replay subscription failed: %w", err)
	}

	done, err := engine.StartReplay(ctx, replayGameID, config.Pace)
	if err != nil {
		return fmt.Errorf("replay start failed: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("replay interrupted: %w", ctx.Err())
	}

	// Step 5: report replay health and query surfaces
	sessionMetrics, err := engine.SessionMetrics(replayGameID)
	if err != nil {
		return fmt.Errorf("session metrics failed: %w", err)
	}
	matches := engine.SearchPlays(config.SearchQuery, 10)

	stats.GameStateEvents = replaySub.count(model.EventGameState)
	stats.PredictionEvents = replaySub.count(model.EventPrediction)
	stats.ShapEvents = replaySub.count(model.EventShap)
	stats.TimelineEvents = replaySub.count(model.EventTimeline)
	stats.WinProbEvents = live.count(model.EventWinProb)
	stats.SearchMatches = len(matches)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if history, err := engine.History(ctx, gids[0], 0); err == nil {
		log.Info(ctx, "history sample",
			logger.String("gid", gids[0]),
			logger.Int("points", len(history)))
	}
	if impacts, err := engine.TopContributions(ctx, gids[0], 3); err == nil {
		for _, impact := range impacts {
			log.Info(ctx, "top contribution bucket",
				logger.String("gid", gids[0]),
				logger.String("bucket", impact.Bucket),
				logger.Float64("total", impact.Total))
		}
	}

	displayFinalStats(ctx, log, stats, sessionMetrics.P95PredictionLatencyMS, sessionMetrics.P95ShapLatencyMS)
	return verify(config, stats)
}

// waitForPipeline polls the cache until every contest has a smoothed
// answer, or the context expires.
func waitForPipeline(ctx context.Context, engine *app.Engine, gids []string) error {
	for _, gid := range gids {
		for {
			_, err := engine.LatestWinProb(ctx, gid)
			if err == nil {
				break
			}
			if !errors.Is(err, cache.ErrNotFound) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(drainPollInterval):
			}
		}
	}
	return nil
}

// verify checks that the run produced what it should have.
func verify(config *Config, stats *Stats) error {
	if stats.GameStateEvents != 1 {
		return fmt.Errorf("expected exactly one game_state event, got %d", stats.GameStateEvents)
	}
	if stats.PredictionEvents != config.Plays {
		return fmt.Errorf("expected %d prediction events, got %d", config.Plays, stats.PredictionEvents)
	}
	if stats.ShapEvents != config.Plays {
		return fmt.Errorf("expected %d shap events, got %d", config.Plays, stats.ShapEvents)
	}
	if stats.TimelineEvents != config.Plays {
		return fmt.Errorf("expected %d timeline events, got %d", config.Plays, stats.TimelineEvents)
	}
	if want := config.Games * config.PacketsPerGame; stats.WinProbEvents != want {
		return fmt.Errorf("expected %d live feed events, got %d", want, stats.WinProbEvents)
	}
	return nil
}

// displayFinalStats prints the run summary.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats, p95PredMS, p95ShapMS float64) {
	log.Info(ctx, "demo finished",
		logger.Int("packetsPublished", stats.PacketsPublished),
		logger.Int("liveFeedEvents", stats.WinProbEvents),
		logger.Int("predictionEvents", stats.PredictionEvents),
		logger.Int("shapEvents", stats.ShapEvents),
		logger.Int("timelineEvents", stats.TimelineEvents),
		logger.Int("searchMatches", stats.SearchMatches),
		logger.Float64("p95PredictionLatencyMS", p95PredMS),
		logger.Float64("p95ShapLatencyMS", p95ShapMS),
		logger.Duration("duration", stats.Duration))
}
