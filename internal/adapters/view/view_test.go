package view_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/huddle/internal/adapters/view"
	model "github.com/okian/huddle/internal/domain/model"
	logging "github.com/okian/huddle/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func openView(t *testing.T) *view.View {
	t.Helper()
	v, err := view.Open(view.WithPath(filepath.Join(t.TempDir(), "view.db")))
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func point(gid string, ts int64, pWin float64, buckets map[string]float64) model.WinProbMessage {
	return model.WinProbMessage{
		GID:  gid,
		TS:   ts,
		PWin: pWin,
		Explain: model.Explanation{
			Raw:     pWin,
			Buckets: buckets,
			Alpha:   0.15,
		},
	}
}

func TestViewHistory(t *testing.T) {
	convey.Convey("Given a view with points for two contests", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		v := openView(t)

		for i, p := range []float64{0.5, 0.55, 0.62} {
			msg := point("game-1", int64(100*(i+1)), p, nil)
			convey.So(v.InsertPoint(ctx, msg), convey.ShouldBeNil)
		}
		convey.So(v.InsertPoint(ctx, point("game-2", 50, 0.4, nil)), convey.ShouldBeNil)

		convey.Convey("When the full history is queried", func() {
			points, err := v.History(ctx, "game-1", 0)

			convey.Convey("Then it is ascending and scoped to the contest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(points), convey.ShouldEqual, 3)
				convey.So(points[0].TS, convey.ShouldEqual, 100)
				convey.So(points[2].TS, convey.ShouldEqual, 300)
				convey.So(points[2].PWin, convey.ShouldAlmostEqual, 0.62)
			})
		})

		convey.Convey("When a since bound falls inside the series", func() {
			points, err := v.History(ctx, "game-1", 150)

			convey.Convey("Then only points at or after the bound return", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(points), convey.ShouldEqual, 2)
				convey.So(points[0].TS, convey.ShouldEqual, 200)
				convey.So(points[1].TS, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When the since bound matches a point exactly", func() {
			points, err := v.History(ctx, "game-1", 200)

			convey.Convey("Then the bound is inclusive", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(points), convey.ShouldEqual, 2)
				convey.So(points[0].TS, convey.ShouldEqual, 200)
			})
		})

		convey.Convey("When the since bound is past the series", func() {
			points, err := v.History(ctx, "game-1", 301)

			convey.Convey("Then the result is empty", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(points), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When an unknown contest is queried", func() {
			points, err := v.History(ctx, "game-x", 0)

			convey.Convey("Then the result is empty", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(points), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestViewTopContributions(t *testing.T) {
	convey.Convey("Given a view with contribution rows", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		v := openView(t)

		buckets := map[string]float64{"QB": 0.3, "DEF": -0.5, "WR": 0.1}
		convey.So(v.InsertPoint(ctx, point("game-1", 100, 0.6, buckets)), convey.ShouldBeNil)
		convey.So(v.InsertPoint(ctx, point("game-1", 101, 0.65, buckets)), convey.ShouldBeNil)
		convey.So(v.InsertPoint(ctx, point("game-2", 100, 0.5, map[string]float64{"QB": 2.0})), convey.ShouldBeNil)

		convey.Convey("When the top contributions are queried", func() {
			impacts, err := v.TopContributions(ctx, "game-1", 2)

			convey.Convey("Then buckets rank by absolute total within the contest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(impacts), convey.ShouldEqual, 2)
				convey.So(impacts[0].Bucket, convey.ShouldEqual, "DEF")
				convey.So(impacts[0].Total, convey.ShouldAlmostEqual, -1.0)
				convey.So(impacts[0].Points, convey.ShouldEqual, 2)
				convey.So(impacts[1].Bucket, convey.ShouldEqual, "QB")
				convey.So(impacts[1].Total, convey.ShouldAlmostEqual, 0.6)
			})
		})

		convey.Convey("When k exceeds the bucket count", func() {
			impacts, err := v.TopContributions(ctx, "game-1", 10)

			convey.Convey("Then every bucket is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(impacts), convey.ShouldEqual, 3)
			})
		})
	})
}

func TestViewRefresh(t *testing.T) {
	convey.Convey("Given a view with contribution rows", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		v := openView(t)

		convey.So(v.InsertPoint(ctx, point("game-1", 100, 0.6, map[string]float64{"QB": 0.3, "DEF": -0.5})), convey.ShouldBeNil)
		convey.So(v.InsertPoint(ctx, point("game-2", 100, 0.5, map[string]float64{"QB": 0.2})), convey.ShouldBeNil)

		convey.Convey("When the rollup refreshes", func() {
			convey.So(v.Refresh(ctx), convey.ShouldBeNil)
			impacts, err := v.FeatureImpact(ctx)

			convey.Convey("Then it aggregates across contests", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(impacts), convey.ShouldEqual, 2)
				convey.So(impacts[0].Bucket, convey.ShouldEqual, "DEF")
				convey.So(impacts[0].Total, convey.ShouldAlmostEqual, -0.5)
				convey.So(impacts[1].Bucket, convey.ShouldEqual, "QB")
				convey.So(impacts[1].Total, convey.ShouldAlmostEqual, 0.5)
				convey.So(impacts[1].Points, convey.ShouldEqual, 2)
			})

			convey.Convey("And refreshing again without new rows changes nothing", func() {
				convey.So(v.Refresh(ctx), convey.ShouldBeNil)
				again, err := v.FeatureImpact(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldResemble, impacts)
			})

			convey.Convey("And new rows are picked up by the next refresh", func() {
				convey.So(v.InsertPoint(ctx, point("game-1", 101, 0.7, map[string]float64{"WR": 0.9})), convey.ShouldBeNil)
				convey.So(v.Refresh(ctx), convey.ShouldBeNil)

				after, err := v.FeatureImpact(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(after), convey.ShouldEqual, 3)
				convey.So(after[0].Bucket, convey.ShouldEqual, "WR")
			})
		})

		convey.Convey("When the rollup never refreshed", func() {
			impacts, err := v.FeatureImpact(ctx)

			convey.Convey("Then it is empty", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(impacts), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestViewStats(t *testing.T) {
	convey.Convey("Given a view with points", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		v := openView(t)

		convey.So(v.InsertPoint(ctx, point("game-1", 100, 0.6, nil)), convey.ShouldBeNil)
		convey.So(v.InsertPoint(ctx, point("game-1", 101, 0.62, nil)), convey.ShouldBeNil)
		convey.So(v.InsertPoint(ctx, point("game-2", 100, 0.5, nil)), convey.ShouldBeNil)

		convey.Convey("When stats are queried", func() {
			points, contests, err := v.Stats(ctx)

			convey.Convey("Then counts cover points and distinct contests", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(points, convey.ShouldEqual, 3)
				convey.So(contests, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestViewOpen(t *testing.T) {
	convey.Convey("Given no database path", t, func() {
		_ = logging.Init()

		convey.Convey("Then opening fails", func() {
			_, err := view.Open()
			convey.So(err, convey.ShouldWrap, view.ErrOpenFailed)
		})
	})
}
