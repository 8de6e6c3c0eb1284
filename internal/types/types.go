package types

// ClientMessage is one inbound event from a connected player. Type selects
// which of the optional fields matter.
type ClientMessage struct {
	Type string `json:"type"` // "join" | "request_label" | "submit" | "end_game"

	// join
	PairingKey string `json:"pairing_key,omitempty"`

	// request_label / submit / end_game
	SessionID string `json:"session_id,omitempty"`

	// submit
	Guess    string  `json:"guess_label,omitempty"`
	TimeLeft float64 `json:"time_left,omitempty"`
	Image    string  `json:"image,omitempty"` // base64-encoded drawing

	// end_game
	Score int `json:"score,omitempty"`
}
