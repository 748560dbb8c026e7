package validation_test

import (
	"errors"
	"testing"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/validation"
	"github.com/smartystreets/goconvey/convey"
)

func validPacket() model.RawPacket {
	return model.RawPacket{
		GID:          "2024-KC-BUF",
		TS:           1736629200,
		YPred:        0.63,
		Shap:         []model.FeatureContribution{{Feature: "QB_pressure_rate", Score: 0.12}},
		ModelVersion: "wp-2024.3",
	}
}

func TestStructValidation(t *testing.T) {
	convey.Convey("Given raw packet validation", t, func() {
		convey.Convey("When the packet is well formed", func() {
			err := validation.Struct(validPacket())

			convey.Convey("Then it passes", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the contest id is missing", func() {
			pkt := validPacket()
			pkt.GID = ""
			err := validation.Struct(pkt)

			convey.Convey("Then it fails with the invalid sentinel", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, validation.ErrInvalid), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "GID")
			})
		})

		convey.Convey("When the probability is out of range", func() {
			pkt := validPacket()
			pkt.YPred = 1.5
			err := validation.Struct(pkt)

			convey.Convey("Then it fails", func() {
				convey.So(errors.Is(err, validation.ErrInvalid), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "lte")
			})
		})

		convey.Convey("When a shap entry has no feature name", func() {
			pkt := validPacket()
			pkt.Shap = append(pkt.Shap, model.FeatureContribution{Score: 0.5})
			err := validation.Struct(pkt)

			convey.Convey("Then the nested entry fails", func() {
				convey.So(errors.Is(err, validation.ErrInvalid), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When several fields fail at once", func() {
			pkt := validPacket()
			pkt.GID = ""
			pkt.ModelVersion = ""
			err := validation.Struct(pkt)

			convey.Convey("Then the message names each field", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "GID")
				convey.So(err.Error(), convey.ShouldContainSubstring, "ModelVersion")
			})
		})

		convey.Convey("When a probability sits on the boundary", func() {
			low := validPacket()
			low.YPred = 0.0
			high := validPacket()
			high.YPred = 1.0

			convey.Convey("Then both bounds are accepted", func() {
				convey.So(validation.Struct(low), convey.ShouldBeNil)
				convey.So(validation.Struct(high), convey.ShouldBeNil)
			})
		})
	})
}

func TestGetReusesInstance(t *testing.T) {
	convey.Convey("Given the shared validator", t, func() {
		convey.Convey("When fetched twice", func() {
			first := validation.Get()
			second := validation.Get()

			convey.Convey("Then both calls return the same instance", func() {
				convey.So(first, convey.ShouldEqual, second)
			})
		})
	})
}
