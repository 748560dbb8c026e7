// Package features holds feature metadata: the coarse bucket table used to
// group per-feature contributions and a JSON-file-backed schema registry.
package features

import (
	model "github.com/okian/huddle/internal/domain/model"
)

// Bucket names for grouped contributions.
const (
	BucketQB        = "QB"
	BucketWR        = "WR"
	BucketOL        = "OL"
	BucketDefense   = "DEF"
	BucketSituation = "SITUATION"
	// BucketOther collects every feature the table does not name.
	BucketOther = "OTHER"
)

// DefaultBucketTable returns the exact-match feature to bucket mapping.
// Matching is by full feature name; anything unmatched lands in OTHER.
func DefaultBucketTable() map[string]string {
	return map[string]string{
		"QB_pressure_rate":     BucketQB,
		"QB_scramble_rate":     BucketQB,
		"WR_sep":               BucketWR,
		"WR_yards_after_catch": BucketWR,
		"OL_win_rate":          BucketOL,
		"DEF_pressure":         BucketDefense,
		"DEF_pass_rush":        BucketDefense,
		"score_diff":           BucketSituation,
		"time_left":            BucketSituation,
	}
}

// Bucketize aggregates contribution scores into buckets using table.
// Only buckets that received at least one entry appear in the result.
func Bucketize(shap []model.FeatureContribution, table map[string]string) map[string]float64 {
	totals := make(map[string]float64)
	for _, item := range shap {
		bucket, ok := table[item.Feature]
		if !ok {
			bucket = BucketOther
		}
		totals[bucket] += item.Score
	}
	return totals
}

// Flatten returns the raw contribution vector in packet order.
func Flatten(shap []model.FeatureContribution) []float64 {
	out := make([]float64, len(shap))
	for i, item := range shap {
		out[i] = item.Score
	}
	return out
}
