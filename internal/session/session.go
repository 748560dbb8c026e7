// Package session owns the per-contest replay state machines. A Session
// paces through its ingested plays, broadcasting prediction, explanation
// and timeline events to its subscribers, while the Registry enforces the
// one-live-session-per-contest rule and the ingestion queue depth limit.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/okian/huddle/internal/domain/explain"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/fanout"
	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// State is a session's replay lifecycle phase.
type State string

const (
	// StateIdle means the session exists but replay has not started.
	StateIdle State = "idle"
	// StateRunning means the replay task is advancing the cursor.
	StateRunning State = "running"
	// StatePaused means the gate is closed and the cursor is frozen.
	StatePaused State = "paused"
	// StateCompleted means every play has been replayed.
	StateCompleted State = "completed"
)

// Replay pacing defaults.
const (
	defaultPredictionDelay = 20 * time.Millisecond
	defaultReplaySleep     = 10 * time.Millisecond
	defaultTimelineCap     = 512
	defaultSampleCap       = 1024
	// minPace floors the pace multiplier so the delay division stays sane.
	minPace = 0.1
)

// Session replays one contest's plays to its subscribers.
//
// The play sequence is immutable after construction. The cursor, state,
// timeline and latency samples are mutated only by the session's own replay
// task and by pause requests, guarded by one mutex. Explanation snapshots
// are computed on a separate worker in play order, so replay pacing never
// waits on explanation cost.
type Session struct {
	gameID    string
	homeTeam  string
	awayTeam  string
	createdAt time.Time
	plays     []model.Play

	clk         clock.Clock
	log         logger.Logger
	snap        explain.Snapshotter
	broadcaster *fanout.Broadcaster

	predictionDelay time.Duration
	replaySleep     time.Duration
	timelineCap     int
	sampleCap       int

	mu        sync.Mutex
	state     State
	cursor    int
	paused    bool
	resumeCh  chan struct{}
	runDone   chan struct{}
	cancelRun context.CancelFunc
	timeline  []model.TimelinePoint
	explainMS []float64
	predictMS []float64
}

func newSession(r *Registry, gameID, homeTeam, awayTeam string, plays []model.Play) *Session {
	resume := make(chan struct{})
	close(resume)

	s := &Session{
		gameID:          gameID,
		homeTeam:        homeTeam,
		awayTeam:        awayTeam,
		createdAt:       r.clk.Now(),
		plays:           plays,
		clk:             r.clk,
		log:             r.log,
		snap:            r.newSnapshotter(),
		predictionDelay: r.predictionDelay,
		replaySleep:     r.replaySleep,
		timelineCap:     r.timelineCap,
		sampleCap:       r.sampleCap,
		state:           StateIdle,
		resumeCh:        resume,
	}
	s.broadcaster = fanout.NewBroadcaster(
		fanout.WithName("session"),
		fanout.WithLogger(r.log),
	)
	return s
}

// GameID returns the contest id the session replays.
func (s *Session) GameID() string { return s.gameID }

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor reports how many plays have been dequeued so far.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// QueueDepth reports how many plays remain to be replayed.
func (s *Session) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plays) - s.cursor
}

// Timeline returns a copy of the rolling timeline history, oldest first.
func (s *Session) Timeline() []model.TimelinePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TimelinePoint, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// ExplainLatencies returns a copy of the recorded explanation latencies.
func (s *Session) ExplainLatencies() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.explainMS...)
}

// PredictionLatencies returns a copy of the recorded prediction latencies.
func (s *Session) PredictionLatencies() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.predictMS...)
}

// GameState builds the synthetic snapshot sent to new subscribers.
func (s *Session) GameState() model.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.GameState{
		GameID:     s.gameID,
		HomeTeam:   s.homeTeam,
		AwayTeam:   s.awayTeam,
		State:      string(s.state),
		TotalPlays: len(s.plays),
		Cursor:     s.cursor,
		StartedAt:  s.createdAt,
	}
}

// Subscribers reports how many subscribers the session currently has.
func (s *Session) Subscribers() int {
	return s.broadcaster.Count()
}

// Register connects a subscriber and immediately sends it the current game
// state, so late joiners can render before the next replay event arrives.
func (s *Session) Register(ctx context.Context, sub fanout.Subscriber) error {
	if sub == nil {
		return nil
	}

	s.broadcaster.Connect(ctx, sub)
	if err := sub.Send(model.NewGameStateEvent(s.GameState())); err != nil {
		s.broadcaster.Disconnect(ctx, sub.ID())
		return err
	}
	metrics.RecordReplayEvent(string(model.EventGameState))
	return nil
}

// Unregister disconnects a subscriber. Unknown ids are a no-op.
func (s *Session) Unregister(ctx context.Context, id string) {
	s.broadcaster.Disconnect(ctx, id)
}

// SetPaused flips the pause gate. It never blocks the caller; the replay
// loop observes the gate before dequeuing its next play, so no new play
// starts once a pause is requested while the in-flight play completes.
func (s *Session) SetPaused(ctx context.Context, paused bool) {
	s.mu.Lock()
	if s.paused == paused {
		s.mu.Unlock()
		return
	}
	s.paused = paused
	if paused {
		s.resumeCh = make(chan struct{})
		if s.state == StateRunning {
			s.state = StatePaused
		}
	} else {
		close(s.resumeCh)
		if s.state == StatePaused {
			s.state = StateRunning
		}
	}
	s.mu.Unlock()

	s.log.Info(ctx, "pause gate updated",
		logger.String("game_id", s.gameID),
		logger.Bool("paused", paused))
}

// StartReplay launches the replay task at the given pace multiplier and
// returns a channel closed when the task exits. Starting while a run is in
// flight returns that run's channel instead of starting a second one.
func (s *Session) StartReplay(ctx context.Context, pace float64) <-chan struct{} {
	s.mu.Lock()
	if s.runDone != nil {
		select {
		case <-s.runDone:
			// The previous run finished. Fall through and start a new one.
		default:
			done := s.runDone
			s.mu.Unlock()
			s.log.Debug(ctx, "replay already running", logger.String("game_id", s.gameID))
			return done
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancelRun = cancel
	s.runDone = done
	if s.cursor < len(s.plays) {
		if s.paused {
			s.state = StatePaused
		} else {
			s.state = StateRunning
		}
	}
	s.mu.Unlock()

	s.log.Info(ctx, "replay started",
		logger.String("game_id", s.gameID),
		logger.Int("plays", len(s.plays)),
		logger.Float64("pace", pace))

	go s.run(runCtx, pace, done)
	return done
}

// Stop cancels any in-flight replay and waits for the task to exit. It is
// safe to call on a session that never started.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancelRun, s.runDone
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the replay and disconnects every subscriber.
func (s *Session) Close(ctx context.Context) {
	s.Stop()
	s.broadcaster.CloseAll(ctx)
}

// run is the replay task. Exactly one run is live per session at a time.
func (s *Session) run(ctx context.Context, pace float64, done chan struct{}) {
	// Explanation work rides its own worker, fed in play order. The channel
	// holds every play, so the handoff below can never block the loop.
	handoff := make(chan model.Play, len(s.plays))
	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go s.explainWorker(ctx, handoff, &workerWG)

	defer func() {
		close(handoff)
		workerWG.Wait()
		close(done)
	}()

	if pace < minPace {
		pace = minPace
	}
	delay := time.Duration(float64(s.predictionDelay) / pace)

	for {
		s.mu.Lock()
		if s.cursor >= len(s.plays) {
			s.state = StateCompleted
			s.mu.Unlock()
			s.log.Info(ctx, "replay completed",
				logger.String("game_id", s.gameID),
				logger.Int("plays", len(s.plays)))
			return
		}
		s.mu.Unlock()

		if err := s.awaitGate(ctx); err != nil {
			return
		}

		s.mu.Lock()
		play := s.plays[s.cursor]
		s.cursor++
		s.mu.Unlock()

		predStart := s.clk.Now()
		if err := s.clk.Sleep(ctx, delay); err != nil {
			return
		}
		s.recordPredictionLatency(float64(s.clk.Since(predStart)) / float64(time.Millisecond))

		s.broadcaster.Broadcast(ctx, model.NewPredictionEvent(play.ID, play.Prediction))
		metrics.RecordReplayEvent(string(model.EventPrediction))

		handoff <- play

		if err := s.clk.Sleep(ctx, s.replaySleep); err != nil {
			return
		}
	}
}

// awaitGate blocks while the session is paused. The gate is re-checked
// after every wakeup because it may flip again before the loop observes it.
func (s *Session) awaitGate(ctx context.Context) error {
	for {
		s.mu.Lock()
		paused, resume := s.paused, s.resumeCh
		s.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// explainWorker drains plays in FIFO order, so shap and timeline events
// keep play order even though the replay loop never waits on them.
func (s *Session) explainWorker(ctx context.Context, plays <-chan model.Play, wg *sync.WaitGroup) {
	defer wg.Done()

	for play := range plays {
		snapshot, err := s.snap.Snapshot(ctx, play)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn(ctx, "explanation snapshot failed",
				logger.String("game_id", s.gameID),
				logger.String("play_id", play.ID),
				logger.Error(err))
			continue
		}
		s.recordExplainLatency(snapshot.LatencyMS)

		s.broadcaster.Broadcast(ctx, model.NewShapEvent(snapshot))
		metrics.RecordReplayEvent(string(model.EventShap))

		point := model.TimelinePoint{
			PlayID:  play.ID,
			ShapSum: snapshot.TopImpact(),
			TS:      s.clk.Now(),
		}
		s.appendTimeline(point)
		s.broadcaster.Broadcast(ctx, model.NewTimelineEvent(point))
		metrics.RecordReplayEvent(string(model.EventTimeline))
	}
}

func (s *Session) appendTimeline(p model.TimelinePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = append(s.timeline, p)
	if len(s.timeline) > s.timelineCap {
		s.timeline = append(s.timeline[:0], s.timeline[1:]...)
	}
}

func (s *Session) recordPredictionLatency(ms float64) {
	s.mu.Lock()
	s.predictMS = appendBounded(s.predictMS, ms, s.sampleCap)
	s.mu.Unlock()
	metrics.RecordPredictionLatency(ms)
}

func (s *Session) recordExplainLatency(ms float64) {
	s.mu.Lock()
	s.explainMS = appendBounded(s.explainMS, ms, s.sampleCap)
	s.mu.Unlock()
	metrics.RecordExplainSnapshot()
	metrics.RecordExplainLatency(ms)
}

// appendBounded drops the oldest sample once the list reaches limit.
func appendBounded(samples []float64, v float64, limit int) []float64 {
	samples = append(samples, v)
	if limit > 0 && len(samples) > limit {
		samples = append(samples[:0], samples[1:]...)
	}
	return samples
}
