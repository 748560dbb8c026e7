// Package model contains domain models passed between layers.
package model

import "time"

// Play represents one scored play inside a contest.
type Play struct {
	ID            string             `json:"play_id"`
	Description   string             `json:"description"`
	Team          string             `json:"team"`
	Quarter       int                `json:"quarter"`
	TimeRemaining float64            `json:"time_remaining"` // seconds left on the game clock
	Features      map[string]float64 `json:"features"`
	Prediction    float64            `json:"prediction"` // raw model win probability
	Timestamp     time.Time          `json:"timestamp"`
}

// CloneFeatures returns a copy of the feature map so callers can iterate or
// mutate without touching the play.
func (p Play) CloneFeatures() map[string]float64 {
	out := make(map[string]float64, len(p.Features))
	for k, v := range p.Features {
		out[k] = v
	}
	return out
}

// GameState is the synthetic snapshot a subscriber receives on registration.
type GameState struct {
	GameID     string    `json:"game_id"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	State      string    `json:"state"`
	TotalPlays int       `json:"total_plays"`
	Cursor     int       `json:"cursor"`
	StartedAt  time.Time `json:"started_at"`
}

// HistoryPoint is one row of the win probability history query.
type HistoryPoint struct {
	TS   int64   `json:"ts"`
	PWin float64 `json:"p_win"`
}
