package model

import (
	"github.com/goccy/go-json"
)

// RawPacket is the wire form of one live scored update for a contest.
// State is carried as an opaque blob; the engine never inspects it.
type RawPacket struct {
	GID          string                `json:"gid" validate:"required"`
	TS           int64                 `json:"ts" validate:"required"`
	YPred        float64               `json:"y_pred" validate:"gte=0,lte=1"`
	State        json.RawMessage       `json:"state,omitempty"`
	Shap         []FeatureContribution `json:"shap" validate:"dive"`
	ModelVersion string                `json:"model_version" validate:"required"`
	PlayID       string                `json:"play_id,omitempty"`
}

// FeatureContribution is one per-feature attribution entry on the wire.
type FeatureContribution struct {
	Feature string  `json:"f" validate:"required"`
	Score   float64 `json:"s"`
}

// Explanation is the typed breakdown attached to every smoothed message.
type Explanation struct {
	Raw     float64            `json:"raw"`     // pre-smoothing probability
	Buckets map[string]float64 `json:"buckets"` // bucket name -> contribution total
	Alpha   float64            `json:"alpha"`   // smoothing factor applied
}

// WinProbMessage is the smoothed update published downstream and cached as
// the latest answer for a contest.
type WinProbMessage struct {
	GID     string      `json:"gid"`
	TS      int64       `json:"ts"`
	PWin    float64     `json:"p_win"`
	Explain Explanation `json:"explain"`
}
