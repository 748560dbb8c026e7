package features_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	features "github.com/okian/huddle/internal/domain/features"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestBucketize(t *testing.T) {
	convey.Convey("Given the default bucket table", t, func() {
		table := features.DefaultBucketTable()

		convey.Convey("When bucketizing known features", func() {
			shap := []model.FeatureContribution{
				{Feature: "QB_pressure_rate", Score: 0.2},
				{Feature: "QB_scramble_rate", Score: 0.1},
				{Feature: "score_diff", Score: -0.4},
			}
			totals := features.Bucketize(shap, table)

			convey.Convey("Then scores aggregate per bucket", func() {
				convey.So(totals[features.BucketQB], convey.ShouldAlmostEqual, 0.3, 1e-9)
				convey.So(totals[features.BucketSituation], convey.ShouldAlmostEqual, -0.4, 1e-9)
			})

			convey.Convey("And untouched buckets do not appear", func() {
				_, ok := totals[features.BucketWR]
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a feature is not in the table", func() {
			shap := []model.FeatureContribution{
				{Feature: "crowd_noise", Score: 0.7},
				{Feature: "turf_type", Score: 0.3},
			}
			totals := features.Bucketize(shap, table)

			convey.Convey("Then it lands in the catch-all bucket", func() {
				convey.So(totals[features.BucketOther], convey.ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		convey.Convey("When matching is tested for exactness", func() {
			shap := []model.FeatureContribution{
				{Feature: "QB_pressure", Score: 1.0}, // prefix of a known feature, not a member
			}
			totals := features.Bucketize(shap, table)

			convey.Convey("Then prefixes do not match", func() {
				convey.So(totals[features.BucketOther], convey.ShouldAlmostEqual, 1.0, 1e-9)
				_, ok := totals[features.BucketQB]
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the shap vector is empty", func() {
			totals := features.Bucketize(nil, table)
			convey.So(len(totals), convey.ShouldEqual, 0)
		})
	})
}

func TestFlatten(t *testing.T) {
	convey.Convey("Given a shap vector", t, func() {
		shap := []model.FeatureContribution{
			{Feature: "a", Score: 0.5},
			{Feature: "b", Score: -0.25},
		}

		convey.Convey("When flattening", func() {
			convey.So(features.Flatten(shap), convey.ShouldResemble, []float64{0.5, -0.25})
		})
	})
}

func TestRegistry(t *testing.T) {
	convey.Convey("Given a feature schema registry", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "feature_registry.json")

		reg, err := features.NewRegistry(features.WithPath(path))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When upserting a schema", func() {
			schema := features.Schema{
				Name:    "live_packet",
				Version: "v1",
				Fields:  []string{"QB_pressure_rate", "score_diff"},
			}
			convey.So(reg.Upsert(schema), convey.ShouldBeNil)

			convey.Convey("Then it can be read back", func() {
				got, err := reg.Get("live_packet")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Version, convey.ShouldEqual, "v1")
				convey.So(got.Fields, convey.ShouldResemble, []string{"QB_pressure_rate", "score_diff"})
			})

			convey.Convey("And it survives a reload from disk", func() {
				reloaded, err := features.NewRegistry(features.WithPath(path))
				convey.So(err, convey.ShouldBeNil)
				convey.So(reloaded.Len(), convey.ShouldEqual, 1)

				got, err := reloaded.Get("live_packet")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Name, convey.ShouldEqual, "live_packet")
				convey.So(got.Version, convey.ShouldEqual, "v1")
			})

			convey.Convey("And upserting again replaces the schema", func() {
				schema.Version = "v2"
				schema.Fields = append(schema.Fields, "time_left")
				convey.So(reg.Upsert(schema), convey.ShouldBeNil)

				got, err := reg.Get("live_packet")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Version, convey.ShouldEqual, "v2")
				convey.So(len(got.Fields), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When fetching an unknown schema", func() {
			_, err := reg.Get("missing")

			convey.Convey("Then the not-found sentinel is returned", func() {
				convey.So(errors.Is(err, features.ErrSchemaNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When upserting a schema with no name", func() {
			err := reg.Upsert(features.Schema{Version: "v1"})
			convey.So(errors.Is(err, features.ErrInvalidSchema), convey.ShouldBeTrue)
		})

		convey.Convey("When the registry has no path", func() {
			mem, err := features.NewRegistry()
			convey.So(err, convey.ShouldBeNil)
			convey.So(mem.Upsert(features.Schema{Name: "ephemeral"}), convey.ShouldBeNil)
			convey.So(mem.Len(), convey.ShouldEqual, 1)
		})

		convey.Convey("When the schema file is corrupt", func() {
			bad := filepath.Join(dir, "bad.json")
			convey.So(os.WriteFile(bad, []byte("{not json"), 0o644), convey.ShouldBeNil)

			_, err := features.NewRegistry(features.WithPath(bad))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRegistryBuckets(t *testing.T) {
	convey.Convey("Given registry bucket lookups", t, func() {
		reg, err := features.NewRegistry()
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When resolving known and unknown features", func() {
			convey.So(reg.Bucket("OL_win_rate"), convey.ShouldEqual, features.BucketOL)
			convey.So(reg.Bucket("unheard_of"), convey.ShouldEqual, features.BucketOther)
		})

		convey.Convey("When overriding the table", func() {
			reg, err := features.NewRegistry(features.WithBucketTable(map[string]string{
				"custom_feature": "CUSTOM",
			}))
			convey.So(err, convey.ShouldBeNil)
			convey.So(reg.Bucket("custom_feature"), convey.ShouldEqual, "CUSTOM")
			convey.So(reg.Bucket("OL_win_rate"), convey.ShouldEqual, features.BucketOther)
		})

		convey.Convey("When copying the table", func() {
			table := reg.BucketTable()
			table["OL_win_rate"] = "MUTATED"
			convey.So(reg.Bucket("OL_win_rate"), convey.ShouldEqual, features.BucketOL)
		})
	})
}
