package model_test

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRawPacketWire(t *testing.T) {
	convey.Convey("Given a raw packet on the wire", t, func() {
		payload := []byte(`{
			"gid": "2024-KC-BUF",
			"ts": 1736629200,
			"y_pred": 0.63,
			"state": {"quarter": 3, "down": 2},
			"shap": [{"f": "QB_pressure_rate", "s": 0.12}, {"f": "score_diff", "s": -0.08}],
			"model_version": "wp-2024.3",
			"play_id": "play-0042"
		}`)

		convey.Convey("When decoding it", func() {
			var pkt model.RawPacket
			err := json.Unmarshal(payload, &pkt)

			convey.Convey("Then every field lands as declared", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pkt.GID, convey.ShouldEqual, "2024-KC-BUF")
				convey.So(pkt.TS, convey.ShouldEqual, int64(1736629200))
				convey.So(pkt.YPred, convey.ShouldAlmostEqual, 0.63, 1e-9)
				convey.So(pkt.ModelVersion, convey.ShouldEqual, "wp-2024.3")
				convey.So(pkt.PlayID, convey.ShouldEqual, "play-0042")
				convey.So(len(pkt.Shap), convey.ShouldEqual, 2)
				convey.So(pkt.Shap[0].Feature, convey.ShouldEqual, "QB_pressure_rate")
				convey.So(pkt.Shap[0].Score, convey.ShouldAlmostEqual, 0.12, 1e-9)
				convey.So(pkt.Shap[1].Score, convey.ShouldAlmostEqual, -0.08, 1e-9)
			})

			convey.Convey("And the state blob stays opaque", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(pkt.State), convey.ShouldContainSubstring, `"quarter"`)
			})
		})

		convey.Convey("When encoding a smoothed message", func() {
			msg := model.WinProbMessage{
				GID:  "2024-KC-BUF",
				TS:   1736629260,
				PWin: 0.71,
				Explain: model.Explanation{
					Raw:     0.73,
					Buckets: map[string]float64{"QB": 0.12, "OTHER": -0.02},
					Alpha:   0.15,
				},
			}
			out, err := json.Marshal(msg)

			convey.Convey("Then the wire shape uses the documented keys", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(out), convey.ShouldContainSubstring, `"gid":"2024-KC-BUF"`)
				convey.So(string(out), convey.ShouldContainSubstring, `"p_win":0.71`)
				convey.So(string(out), convey.ShouldContainSubstring, `"explain"`)
				convey.So(string(out), convey.ShouldContainSubstring, `"alpha":0.15`)
			})
		})
	})
}

func TestEnvelope(t *testing.T) {
	convey.Convey("Given the closed envelope variant", t, func() {
		convey.Convey("When checking membership of the event type set", func() {
			convey.So(model.EventGameState.Valid(), convey.ShouldBeTrue)
			convey.So(model.EventPrediction.Valid(), convey.ShouldBeTrue)
			convey.So(model.EventShap.Valid(), convey.ShouldBeTrue)
			convey.So(model.EventTimeline.Valid(), convey.ShouldBeTrue)
			convey.So(model.EventWinProb.Valid(), convey.ShouldBeTrue)
			convey.So(model.EventType("score").Valid(), convey.ShouldBeFalse)
			convey.So(model.EventType("").Valid(), convey.ShouldBeFalse)
		})

		convey.Convey("When constructing a prediction envelope", func() {
			env := model.NewPredictionEvent("play-7", 0.58)

			convey.Convey("Then the tag and payload match", func() {
				convey.So(env.Type, convey.ShouldEqual, model.EventPrediction)
				data, ok := env.Data.(model.PredictionUpdate)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(data.PlayID, convey.ShouldEqual, "play-7")
				convey.So(data.Prediction, convey.ShouldAlmostEqual, 0.58, 1e-9)
			})
		})

		convey.Convey("When marshalling an envelope", func() {
			env := model.NewTimelineEvent(model.TimelinePoint{
				PlayID:  "play-9",
				ShapSum: 1.25,
				TS:      time.Date(2025, 1, 12, 18, 30, 0, 0, time.UTC),
			})
			out, err := json.Marshal(env)

			convey.Convey("Then the tag travels with the data", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(out), convey.ShouldContainSubstring, `"type":"timeline"`)
				convey.So(string(out), convey.ShouldContainSubstring, `"shap_sum":1.25`)
			})
		})
	})
}

func TestExplanationSnapshot(t *testing.T) {
	convey.Convey("Given an explanation snapshot", t, func() {
		snapshot := model.ExplanationSnapshot{
			PlayID: "play-3",
			TopFeatures: []model.Contribution{
				{Feature: "QB_pressure_rate", Value: 0.4},
				{Feature: "score_diff", Value: -0.3},
				{Feature: "WR_sep", Value: 0.1},
			},
		}

		convey.Convey("When summing top impact", func() {
			convey.Convey("Then negative contributions count by magnitude", func() {
				convey.So(snapshot.TopImpact(), convey.ShouldAlmostEqual, 0.8, 1e-9)
			})
		})

		convey.Convey("When the snapshot has no top features", func() {
			empty := model.ExplanationSnapshot{PlayID: "play-4"}
			convey.So(empty.TopImpact(), convey.ShouldEqual, 0.0)
		})
	})
}

func TestPlayCloneFeatures(t *testing.T) {
	convey.Convey("Given a play with features", t, func() {
		play := model.Play{
			ID:       "play-1",
			Features: map[string]float64{"QB_pressure_rate": 0.3, "WR_sep": 1.2},
		}

		convey.Convey("When cloning the feature map", func() {
			clone := play.CloneFeatures()
			clone["QB_pressure_rate"] = 99.0

			convey.Convey("Then the play's own map is untouched", func() {
				convey.So(play.Features["QB_pressure_rate"], convey.ShouldAlmostEqual, 0.3, 1e-9)
				convey.So(clone["WR_sep"], convey.ShouldAlmostEqual, 1.2, 1e-9)
			})
		})
	})
}
