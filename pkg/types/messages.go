package types

// Payloads for every server -> client event. Field names are part of the
// wire contract with the drawing client, so keep the json tags stable.

// Event wraps a payload with the socket event name it is delivered under.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// PlayerInfo is sent to a joining connection only.
type PlayerInfo struct {
	Slot      string `json:"slot"` // "player_1" | "player_2"
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
}

// StateInfo tells the room whether both slots are filled and ready.
type StateInfo struct {
	Ready bool `json:"ready"`
}

// Label carries the translated label for the round that just started.
type Label struct {
	Text string `json:"text"`
}

// Prediction is the per-caller classification verdict for one submission.
type Prediction struct {
	ConfidenceMap map[string]float64 `json:"confidence_map"`
	Guess         string             `json:"guess"`
	CorrectLabel  string             `json:"correct_label"`
	HasWon        bool               `json:"has_won"`
}

// RoundOver is broadcast to the room exactly once per finished round.
type RoundOver struct {
	RoundOver bool `json:"round_over"`
}

// EndGame carries one player's final score to the opposing slot.
type EndGame struct {
	Score    int    `json:"score"`
	PlayerID string `json:"player_id"`
}

// PlayerDisconnected notifies the remaining player that the peer left.
type PlayerDisconnected struct{}

// ErrorMsg reports a user-caused failure back to the offending connection.
type ErrorMsg struct {
	Message string `json:"message"`
}
