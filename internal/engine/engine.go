package engine

import (
	"errors"
	"time"
)

var ErrSessionFull = errors.New("session already has two players")
var ErrSelfPair = errors.New("you can't join a game with yourself")
var ErrNoOpponent = errors.New("no opponent in session yet")
var ErrGameNotFinished = errors.New("game has rounds remaining")
var ErrNoRoundsLeft = errors.New("number of rounds exceeded")
var ErrUnknownPlayer = errors.New("player not in session")
var ErrUnsupportedCommand = errors.New("unsupported command")

// UserError marks a failure as client-caused. The gateway reports these back
// on the offending connection; everything else is logged and dropped.
type UserError struct {
	Err error
}

func (e UserError) Error() string { return e.Err.Error() }
func (e UserError) Unwrap() error { return e.Err }

func userErr(err error) error { return UserError{Err: err} }

type PlayerState string

const (
	StateWaiting      PlayerState = "waiting"
	StateReady        PlayerState = "ready"
	StateDrawing      PlayerState = "drawing"
	StateDone         PlayerState = "done"
	StateDisconnected PlayerState = "disconnected"
)

type Slot string

const (
	SlotPlayer1 Slot = "player_1"
	SlotPlayer2 Slot = "player_2"
)

type Player struct {
	ID    string
	Slot  Slot
	State PlayerState
}

// State is the authoritative per-session round state. RoundNumber starts at 1
// and Labels[RoundNumber-1] is the active label; RoundNumber == len(Labels)+1
// means every round has been played.
type State struct {
	SessionID   string
	PairingKey  string
	RoundNumber int
	Labels      []string
	CreatedAt   time.Time
	Players     []Player
}

type CommandType string

const (
	CmdRequestLabel CommandType = "RequestLabel"
	CmdSubmit       CommandType = "Submit"
	CmdEndGame      CommandType = "EndGame"
	CmdDisconnect   CommandType = "Disconnect"
)

type Command struct {
	Type     CommandType
	PlayerID string

	// Submit
	Guess      string
	Confidence map[string]float64
	TimeLeft   float64

	// EndGame
	Score int
}

type EventType string

const (
	EvtStateInfo          EventType = "StateInfo"
	EvtLabel              EventType = "Label"
	EvtPrediction         EventType = "Prediction"
	EvtRoundOver          EventType = "RoundOver"
	EvtEndGame            EventType = "EndGame"
	EvtPlayerDisconnected EventType = "PlayerDisconnected"
)

// Audience says where an event is addressed. The session actor owns the
// actual outbox channels; the engine only decides routing.
type Audience string

const (
	ToRoom     Audience = "room"
	ToCaller   Audience = "caller"
	ToOpponent Audience = "opponent"
)

type Event struct {
	Type     EventType
	Audience Audience

	Ready      bool
	Label      string
	Prediction *PredictionResult
	Score      int
	PlayerID   string
}

type PredictionResult struct {
	Confidence   map[string]float64
	Guess        string
	CorrectLabel string
	HasWon       bool
}

// NewState seeds a session with its first player in the player_1 slot.
func NewState(sessionID, pairingKey string, labels []string, playerID string, now time.Time) State {
	return State{
		SessionID:   sessionID,
		PairingKey:  pairingKey,
		RoundNumber: 1,
		Labels:      labels,
		CreatedAt:   now,
		Players: []Player{
			{ID: playerID, Slot: SlotPlayer1, State: StateWaiting},
		},
	}
}

// Attach fills the player_2 slot and flips player_1 from waiting to ready.
// The second joiner starts ready, matching the first round handshake.
func Attach(s State, playerID string) (State, error) {
	if len(s.Players) >= 2 {
		return s, userErr(ErrSessionFull)
	}
	if len(s.Players) == 1 && s.Players[0].ID == playerID {
		return s, userErr(ErrSelfPair)
	}

	newState := clone(s)
	newState.Players[0].State = StateReady
	newState.Players = append(newState.Players, Player{
		ID:    playerID,
		Slot:  SlotPlayer2,
		State: StateReady,
	})
	return newState, nil
}

// ActiveLabel returns the label for the round in progress.
func ActiveLabel(s State) (string, bool) {
	if s.RoundNumber < 1 || s.RoundNumber > len(s.Labels) {
		return "", false
	}
	return s.Labels[s.RoundNumber-1], true
}

// Finished reports whether every round has been played.
func Finished(s State) bool {
	return s.RoundNumber > len(s.Labels)
}

// Apply runs one command against the session state and returns the events to
// emit plus the successor state. The caller (session actor) serializes calls,
// so Apply itself never sees concurrent mutation.
func Apply(s State, cmd Command) ([]Event, State, error) {
	caller, opponent, ok := lookup(s, cmd.PlayerID)
	if !ok {
		return nil, s, ErrUnknownPlayer
	}

	switch cmd.Type {
	case CmdRequestLabel:
		return applyRequestLabel(s, caller, opponent)

	case CmdSubmit:
		return applySubmit(s, cmd, caller, opponent)

	case CmdEndGame:
		if !Finished(s) {
			return nil, s, userErr(ErrGameNotFinished)
		}
		return []Event{
			{Type: EvtEndGame, Audience: ToOpponent, Score: cmd.Score, PlayerID: cmd.PlayerID},
		}, s, nil

	case CmdDisconnect:
		newState := clone(s)
		newState.Players[caller].State = StateDisconnected

		if opponent < 0 || s.Players[opponent].State == StateDisconnected {
			return nil, newState, nil
		}
		return []Event{
			{Type: EvtPlayerDisconnected, Audience: ToOpponent},
		}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyRequestLabel(s State, caller, opponent int) ([]Event, State, error) {
	if opponent < 0 || s.Players[opponent].State == StateDisconnected {
		return nil, s, userErr(ErrNoOpponent)
	}
	label, ok := ActiveLabel(s)
	if !ok {
		return nil, s, userErr(ErrNoRoundsLeft)
	}

	// Drawing means the round already started; done means the caller is
	// waiting on the opponent. Either way a label request is a stray.
	if st := s.Players[caller].State; st == StateDrawing || st == StateDone {
		return nil, s, nil
	}

	newState := clone(s)
	newState.Players[caller].State = StateReady

	if s.Players[opponent].State != StateReady {
		return []Event{
			{Type: EvtStateInfo, Audience: ToCaller, Ready: false},
		}, newState, nil
	}

	newState.Players[caller].State = StateDrawing
	newState.Players[opponent].State = StateDrawing
	return []Event{
		{Type: EvtLabel, Audience: ToRoom, Label: label},
		{Type: EvtStateInfo, Audience: ToRoom, Ready: true},
	}, newState, nil
}

func applySubmit(s State, cmd Command, caller, opponent int) ([]Event, State, error) {
	if opponent < 0 || s.Players[opponent].State == StateDisconnected {
		return nil, s, userErr(ErrNoOpponent)
	}

	// A stray submit after the caller is already done (or before the round
	// started) is ignored: no second prediction, no double round advance.
	if s.Players[caller].State != StateDrawing {
		return nil, s, nil
	}

	label, ok := ActiveLabel(s)
	if !ok {
		return nil, s, userErr(ErrNoRoundsLeft)
	}

	timedOut := cmd.TimeLeft <= 0
	won := !timedOut && cmd.Guess == label

	newState := clone(s)
	var events []Event

	if timedOut {
		// Timeouts end the caller's round silently. The guess never counts
		// as a win even when it matches the label.
		newState.Players[caller].State = StateDone
	} else {
		events = append(events, Event{
			Type:     EvtPrediction,
			Audience: ToCaller,
			Prediction: &PredictionResult{
				Confidence:   cmd.Confidence,
				Guess:        cmd.Guess,
				CorrectLabel: label,
				HasWon:       won,
			},
		})
		if won {
			newState.Players[caller].State = StateDone
		}
	}

	if newState.Players[caller].State == StateDone && s.Players[opponent].State == StateDone {
		newState.RoundNumber++
		newState.Players[caller].State = StateReady
		newState.Players[opponent].State = StateReady
		events = append(events, Event{Type: EvtRoundOver, Audience: ToRoom})
	}

	return events, newState, nil
}

func lookup(s State, playerID string) (caller, opponent int, ok bool) {
	caller, opponent = -1, -1
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			caller = i
		} else {
			opponent = i
		}
	}
	return caller, opponent, caller >= 0
}

func clone(s State) State {
	newState := s
	newState.Players = make([]Player, len(s.Players))
	copy(newState.Players, s.Players)
	return newState
}
