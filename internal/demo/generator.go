package demo

import (
	"fmt"
	"math/rand"
	"time"

	model "github.com/okian/huddle/internal/domain/model"
)

// Packet generation constants.
const (
	walkStep      = 0.08 // max per-packet probability drift
	shapScale     = 0.5  // contribution magnitude range
	quarterLength = 900  // seconds per quarter
)

// packetFeatures are the wire feature names the generator attributes
// contributions to. They match the default bucket table plus one
// deliberately unmapped name that lands in the OTHER bucket.
var packetFeatures = []string{
	"QB_pressure_rate",
	"QB_scramble_rate",
	"WR_sep",
	"WR_yards_after_catch",
	"OL_win_rate",
	"DEF_pressure",
	"DEF_pass_rush",
	"score_diff",
	"time_left",
	"crowd_noise",
}

var playTemplates = []struct {
	description string
	team        string
}{
	{"deep pass complete down the right sideline", "home"},
	{"quarterback scramble for a first down", "home"},
	{"screen pass stuffed behind the line", "away"},
	{"draw play up the middle", "away"},
	{"play-action pass over the middle", "home"},
	{"sack on third and long", "away"},
	{"checkdown to the running back", "home"},
	{"interception returned to midfield", "away"},
}

// generator produces a deterministic stream of packets and plays. Equal
// seeds give identical runs.
type generator struct {
	rng *rand.Rand
}

func newGenerator(seed int64) *generator {
	return &generator{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // deterministic demo data
}

// packets builds one contest's raw packet series: a bounded random walk
// over the raw prediction with per-feature contributions.
func (g *generator) packets(gid string, count int) []model.RawPacket {
	out := make([]model.RawPacket, 0, count)
	pWin := 0.4 + 0.2*g.rng.Float64()
	base := time.Now().Add(-time.Duration(count) * time.Second)

	for i := 0; i < count; i++ {
		pWin += (g.rng.Float64() - 0.5) * 2 * walkStep
		if pWin < 0.02 {
			pWin = 0.02
		}
		if pWin > 0.98 {
			pWin = 0.98
		}

		shap := make([]model.FeatureContribution, 0, len(packetFeatures))
		for _, feature := range packetFeatures {
			shap = append(shap, model.FeatureContribution{
				Feature: feature,
				Score:   (g.rng.Float64() - 0.5) * 2 * shapScale,
			})
		}

		out = append(out, model.RawPacket{
			GID:          gid,
			TS:           base.Add(time.Duration(i) * time.Second).Unix(),
			YPred:        pWin,
			Shap:         shap,
			ModelVersion: "demo-v1",
			PlayID:       fmt.Sprintf("%s-p%03d", gid, i+1),
		})
	}
	return out
}

// plays builds the replay fixture game: an ordered play list with feature
// values and a drifting raw prediction.
func (g *generator) plays(count int) []model.Play {
	out := make([]model.Play, 0, count)
	pWin := 0.5
	base := time.Now().Add(-time.Hour)

	for i := 0; i < count; i++ {
		tmpl := playTemplates[g.rng.Intn(len(playTemplates))]
		pWin += (g.rng.Float64() - 0.5) * 2 * walkStep
		if pWin < 0.05 {
			pWin = 0.05
		}
		if pWin > 0.95 {
			pWin = 0.95
		}

		features := make(map[string]float64, len(packetFeatures))
		for _, feature := range packetFeatures {
			features[feature] = g.rng.Float64()
		}

		quarter := i*4/count + 1
		out = append(out, model.Play{
			ID:            fmt.Sprintf("play-%03d", i+1),
			Description:   tmpl.description,
			Team:          tmpl.team,
			Quarter:       quarter,
			TimeRemaining: float64(quarterLength - (i*quarterLength*4/count)%quarterLength),
			Features:      features,
			Prediction:    pWin,
			Timestamp:     base.Add(time.Duration(i) * 30 * time.Second),
		})
	}
	return out
}
