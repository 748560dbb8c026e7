package model

// IngestRequest is the in-core boundary form of a replay ingestion call.
type IngestRequest struct {
	GameID         string `json:"game_id" validate:"required"`
	HomeTeam       string `json:"home_team" validate:"required"`
	AwayTeam       string `json:"away_team" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	Plays          []Play `json:"plays" validate:"required,min=1"`
}

// IngestResult reports what an ingestion call produced.
type IngestResult struct {
	GameID     string `json:"game_id"`
	TotalPlays int    `json:"total_plays"`
	State      string `json:"state"`
}
