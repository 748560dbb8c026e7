package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/huddle/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.MaxQueueDepth, convey.ShouldEqual, 256)
			convey.So(cfg.CacheTTLHours, convey.ShouldEqual, 48)
			convey.So(cfg.ExplainTopK, convey.ShouldEqual, 5)
			convey.So(cfg.ExplainSeed, convey.ShouldEqual, 42)
			convey.So(cfg.SmoothingAlpha, convey.ShouldAlmostEqual, 0.15)
			convey.So(cfg.PipelineWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.TimelineCapacity, convey.ShouldEqual, 512)
		})

		convey.Convey("Then duration helpers should convert the raw fields", func() {
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 48*time.Hour)
			convey.So(cfg.PredictionDelay(), convey.ShouldEqual, 20*time.Millisecond)
			convey.So(cfg.ReplaySleep(), convey.ShouldEqual, 10*time.Millisecond)
			convey.So(cfg.ExplainDelay(), convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.ViewRefreshInterval(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.DriftCheckInterval(), convey.ShouldEqual, 5*time.Minute)
		})
	})
}
