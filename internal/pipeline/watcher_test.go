package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/okian/huddle/internal/adapters/bus"
	"github.com/okian/huddle/internal/adapters/cache"
	"github.com/okian/huddle/internal/adapters/view"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/smoothing"
	"github.com/okian/huddle/internal/fanout"
	"github.com/okian/huddle/internal/pipeline"
	logging "github.com/okian/huddle/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const recvTimeout = 2 * time.Second

type liveSub struct {
	id     string
	events chan model.Envelope
}

func newLiveSub(id string) *liveSub {
	return &liveSub{id: id, events: make(chan model.Envelope, 16)}
}

func (s *liveSub) ID() string { return s.id }

func (s *liveSub) Send(env model.Envelope) error {
	s.events <- env
	return nil
}

func (s *liveSub) Close() error { return nil }

func recv(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return msg
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func recvEnvelope(t *testing.T, ch <-chan model.Envelope) model.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for live feed envelope")
	}
	return model.Envelope{}
}

type pipelineEnv struct {
	bus     *bus.Bus
	cache   *cache.Store
	view    *view.View
	model   *smoothing.Model
	live    *fanout.Broadcaster
	watcher *pipeline.Watcher
}

func newEnv(t *testing.T, opts ...pipeline.Option) *pipelineEnv {
	t.Helper()

	b := bus.New(bus.WithBufferSize(32))
	store, err := cache.Open(cache.WithInMemory())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	v, err := view.Open(view.WithPath(filepath.Join(t.TempDir(), "view.db")))
	if err != nil {
		t.Fatalf("open view: %v", err)
	}

	env := &pipelineEnv{
		bus:   b,
		cache: store,
		view:  v,
		model: smoothing.NewModel(),
		live:  fanout.NewBroadcaster(fanout.WithName("live")),
	}
	env.watcher = pipeline.NewWatcher(b, store, v, env.model, env.live, opts...)

	t.Cleanup(func() {
		env.watcher.Stop()
		_ = b.Close()
		_ = store.Close()
		_ = v.Close()
	})
	return env
}

func TestWatcherPipelineFlow(t *testing.T) {
	convey.Convey("Given a started pipeline with downstream taps", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		env := newEnv(t)

		out, err := env.bus.Subscribe(ctx, bus.TopicWinProbUpdates)
		convey.So(err, convey.ShouldBeNil)

		sub := newLiveSub("live-1")
		env.live.Connect(ctx, sub)

		convey.So(env.watcher.Start(ctx), convey.ShouldBeNil)
		convey.So(env.watcher.Start(ctx), convey.ShouldBeNil)

		convey.Convey("When a valid packet arrives on the inbound topic", func() {
			packet := model.RawPacket{
				GID:          "game-1",
				TS:           1700000000,
				YPred:        0,
				ModelVersion: "v3",
			}
			convey.So(env.bus.Publish(ctx, bus.TopicShapUpdates, packet), convey.ShouldBeNil)

			convey.Convey("Then the live feed carries the smoothed update", func() {
				got := recvEnvelope(t, sub.events)
				convey.So(got.Type, convey.ShouldEqual, model.EventWinProb)

				msg, ok := got.Data.(model.WinProbMessage)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(msg.GID, convey.ShouldEqual, "game-1")
				convey.So(msg.PWin, convey.ShouldAlmostEqual, 0.5)
				convey.So(msg.Explain.Alpha, convey.ShouldAlmostEqual, 0.15)

				convey.Convey("And every store along the pipeline observed it", func() {
					wire := recv(t, out)
					wire.Ack()
					var published model.WinProbMessage
					convey.So(json.Unmarshal(wire.Payload, &published), convey.ShouldBeNil)
					convey.So(published.PWin, convey.ShouldAlmostEqual, 0.5)

					cached, err := env.cache.WinProb(ctx, "game-1")
					convey.So(err, convey.ShouldBeNil)
					convey.So(cached.PWin, convey.ShouldAlmostEqual, 0.5)

					raw, err := env.cache.LastShap(ctx, "game-1")
					convey.So(err, convey.ShouldBeNil)
					convey.So(raw.TS, convey.ShouldEqual, packet.TS)

					audit, err := env.cache.RecentAudit(ctx, 5)
					convey.So(err, convey.ShouldBeNil)
					convey.So(audit, convey.ShouldHaveLength, 1)
					convey.So(audit[0].GID, convey.ShouldEqual, "game-1")

					history, err := env.view.History(ctx, "game-1", 0)
					convey.So(err, convey.ShouldBeNil)
					convey.So(history, convey.ShouldHaveLength, 1)
					convey.So(history[0].PWin, convey.ShouldAlmostEqual, 0.5)
				})
			})
		})
	})
}

func TestWatcherSkipsInvalidPackets(t *testing.T) {
	convey.Convey("Given a started pipeline", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		env := newEnv(t)

		out, err := env.bus.Subscribe(ctx, bus.TopicWinProbUpdates)
		convey.So(err, convey.ShouldBeNil)
		convey.So(env.watcher.Start(ctx), convey.ShouldBeNil)

		convey.Convey("When malformed payloads precede a valid packet", func() {
			convey.So(env.bus.PublishRaw(ctx, bus.TopicShapUpdates, []byte("not json")), convey.ShouldBeNil)
			convey.So(env.bus.PublishRaw(ctx, bus.TopicShapUpdates,
				[]byte(`{"ts":1700000000,"y_pred":0.5,"model_version":"v3"}`)), convey.ShouldBeNil)
			convey.So(env.bus.PublishRaw(ctx, bus.TopicShapUpdates,
				[]byte(`{"gid":"game-bad","ts":1700000000,"y_pred":1.5,"model_version":"v3"}`)), convey.ShouldBeNil)
			convey.So(env.bus.Publish(ctx, bus.TopicShapUpdates, model.RawPacket{
				GID:          "game-ok",
				TS:           1700000001,
				YPred:        1,
				ModelVersion: "v3",
			}), convey.ShouldBeNil)

			convey.Convey("Then only the valid packet flows through", func() {
				wire := recv(t, out)
				wire.Ack()
				var published model.WinProbMessage
				convey.So(json.Unmarshal(wire.Payload, &published), convey.ShouldBeNil)
				convey.So(published.GID, convey.ShouldEqual, "game-ok")
				convey.So(published.PWin, convey.ShouldAlmostEqual, 0.7310585786300049)

				_, err := env.cache.WinProb(ctx, "game-bad")
				convey.So(err, convey.ShouldWrap, cache.ErrNotFound)
			})
		})
	})
}

func TestWatcherSameContestOrder(t *testing.T) {
	convey.Convey("Given a started pipeline", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		env := newEnv(t)

		out, err := env.bus.Subscribe(ctx, bus.TopicWinProbUpdates)
		convey.So(err, convey.ShouldBeNil)
		convey.So(env.watcher.Start(ctx), convey.ShouldBeNil)

		convey.Convey("When two packets for one contest arrive in order", func() {
			first := model.RawPacket{GID: "game-1", TS: 1700000000, YPred: 0, ModelVersion: "v3"}
			second := model.RawPacket{GID: "game-1", TS: 1700000010, YPred: 1, ModelVersion: "v3"}
			convey.So(env.bus.Publish(ctx, bus.TopicShapUpdates, first), convey.ShouldBeNil)
			convey.So(env.bus.Publish(ctx, bus.TopicShapUpdates, second), convey.ShouldBeNil)

			convey.Convey("Then smoothing applies them in arrival order", func() {
				wire := recv(t, out)
				wire.Ack()
				var one model.WinProbMessage
				convey.So(json.Unmarshal(wire.Payload, &one), convey.ShouldBeNil)
				convey.So(one.PWin, convey.ShouldAlmostEqual, 0.5)

				wire = recv(t, out)
				wire.Ack()
				var two model.WinProbMessage
				convey.So(json.Unmarshal(wire.Payload, &two), convey.ShouldBeNil)
				convey.So(two.PWin, convey.ShouldAlmostEqual, 0.5346587867945007)
			})
		})
	})
}

func TestWatcherStop(t *testing.T) {
	convey.Convey("Given a started pipeline", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		env := newEnv(t)

		out, err := env.bus.Subscribe(ctx, bus.TopicWinProbUpdates)
		convey.So(err, convey.ShouldBeNil)
		convey.So(env.watcher.Start(ctx), convey.ShouldBeNil)

		convey.Convey("When the watcher stops", func() {
			env.watcher.Stop()
			env.watcher.Stop()

			convey.Convey("Then inbound packets are no longer processed", func() {
				convey.So(env.bus.Publish(ctx, bus.TopicShapUpdates, model.RawPacket{
					GID:          "game-late",
					TS:           1700000000,
					YPred:        0.5,
					ModelVersion: "v3",
				}), convey.ShouldBeNil)

				select {
				case <-out:
					convey.So("unexpected outbound message", convey.ShouldBeEmpty)
				case <-time.After(100 * time.Millisecond):
				}
			})
		})
	})
}
