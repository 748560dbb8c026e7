package model

import "time"

// Contribution is one feature's attribution inside an explanation snapshot.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// ExplanationSnapshot is the full explanation computed for one play.
type ExplanationSnapshot struct {
	PlayID      string         `json:"play_id"`
	Values      []Contribution `json:"values"`       // every feature, ranked by |value| descending
	TopFeatures []Contribution `json:"top_features"` // first k of Values
	LatencyMS   float64        `json:"latency_ms"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// TopImpact sums the absolute contribution of the top-ranked features.
func (s ExplanationSnapshot) TopImpact() float64 {
	var sum float64
	for _, c := range s.TopFeatures {
		if c.Value < 0 {
			sum -= c.Value
		} else {
			sum += c.Value
		}
	}
	return sum
}

// TimelinePoint is one point of a session's explanation-impact timeline.
type TimelinePoint struct {
	PlayID  string    `json:"play_id"`
	ShapSum float64   `json:"shap_sum"`
	TS      time.Time `json:"ts"`
}
