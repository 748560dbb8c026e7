package model

// EventType tags every envelope delivered to subscribers. The set is
// closed; consumers switch over it exhaustively.
type EventType string

const (
	// EventGameState is the synthetic snapshot sent on registration.
	EventGameState EventType = "game_state"
	// EventPrediction announces the raw model prediction for a play.
	EventPrediction EventType = "prediction"
	// EventShap carries the explanation snapshot for a play.
	EventShap EventType = "shap"
	// EventTimeline carries one appended timeline point.
	EventTimeline EventType = "timeline"
	// EventWinProb is the smoothed live-feed update for a contest.
	EventWinProb EventType = "winprob"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventGameState, EventPrediction, EventShap, EventTimeline, EventWinProb:
		return true
	default:
		return false
	}
}

// Envelope is the tagged message fanned out to subscribers.
type Envelope struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// PredictionUpdate is the payload of an EventPrediction envelope.
type PredictionUpdate struct {
	PlayID     string  `json:"play_id"`
	Prediction float64 `json:"prediction"`
}

// Envelope constructors keep payload shapes tied to their tags.

func NewGameStateEvent(state GameState) Envelope {
	return Envelope{Type: EventGameState, Data: state}
}

func NewPredictionEvent(playID string, prediction float64) Envelope {
	return Envelope{Type: EventPrediction, Data: PredictionUpdate{PlayID: playID, Prediction: prediction}}
}

func NewShapEvent(snapshot ExplanationSnapshot) Envelope {
	return Envelope{Type: EventShap, Data: snapshot}
}

func NewTimelineEvent(point TimelinePoint) Envelope {
	return Envelope{Type: EventTimeline, Data: point}
}

func NewWinProbEvent(msg WinProbMessage) Envelope {
	return Envelope{Type: EventWinProb, Data: msg}
}
