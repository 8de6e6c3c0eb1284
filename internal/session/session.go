package session

import (
	"context"
	"errors"
	"time"

	"github.com/sketchduel/backend/internal/engine"
	"github.com/sketchduel/backend/pkg/types"
	"go.uber.org/zap"
)

type Msg interface{ isSessionMsg() }

// Attach fills the open player_2 slot and registers the joiner's outbox.
type Attach struct {
	PlayerID string
	Outbox   chan types.Event
	Reply    chan error
}

func (Attach) isSessionMsg() {}

// FromPlayer carries one inbound command from a connected player.
type FromPlayer struct {
	PlayerID string
	Cmd      engine.Command
}

func (FromPlayer) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// View reflects internal state for tests without data races.
type View struct {
	State      engine.State
	NumClients int
}

// Translator localizes a label before it is shown to players.
type Translator interface {
	Translate(label string) (string, error)
}

// ScoreRecorder persists one player's final score.
type ScoreRecorder interface {
	RecordScore(playerID string, score int, date time.Time, difficulty string) error
}

type Deps struct {
	Logger     *zap.Logger
	Translator Translator
	Scores     ScoreRecorder
	Difficulty string

	// OnClose lets the store drop its index entry once the session dies.
	OnClose func(sessionID string)
}

// Session is the single-writer owner of one game's state. Every mutation
// goes through the inbox, so two connections can never interleave their
// reads and writes on the same session.
type Session struct {
	inbox    chan Msg
	state    engine.State
	outboxes map[string]chan types.Event
	ended    map[string]bool
	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

func New(parent context.Context, initial engine.State, firstOutbox chan types.Event, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Session{
		inbox:    make(chan Msg, 64),
		state:    initial,
		outboxes: map[string]chan types.Event{},
		ended:    map[string]bool{},
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
	if p, ok := engine.PlayerBySlot(initial, engine.SlotPlayer1); ok {
		s.outboxes[p.ID] = firstOutbox
		s.sendTo(p.ID, types.Event{Name: "player_info", Data: types.PlayerInfo{
			Slot: string(p.Slot), PlayerID: p.ID, SessionID: initial.SessionID,
		}})
		s.sendTo(p.ID, types.Event{Name: "state_info", Data: types.StateInfo{Ready: false}})
	}

	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the actor has shut down. Senders must select on it:
// a dead actor stops draining its inbox, so an unguarded send or a wait for
// a reply can hang forever.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Attach:
				msg.Reply <- s.attach(msg)

			case FromPlayer:
				s.dispatch(msg)
				if s.closed {
					s.shutdown()
					return
				}

			case GetView:
				msg.Reply <- View{State: s.state, NumClients: len(s.outboxes)}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) attach(msg Attach) error {
	newState, err := engine.Attach(s.state, msg.PlayerID)
	if err != nil {
		return err
	}
	s.state = newState
	s.outboxes[msg.PlayerID] = msg.Outbox

	s.sendTo(msg.PlayerID, types.Event{Name: "player_info", Data: types.PlayerInfo{
		Slot: string(engine.SlotPlayer2), PlayerID: msg.PlayerID, SessionID: s.state.SessionID,
	}})
	s.broadcast(types.Event{Name: "state_info", Data: types.StateInfo{Ready: true}})
	return nil
}

func (s *Session) dispatch(msg FromPlayer) {
	events, newState, err := engine.Apply(s.state, msg.Cmd)
	if err != nil {
		var ue engine.UserError
		if errors.As(err, &ue) {
			// Client-caused and recoverable. State stays as-is.
			s.sendTo(msg.PlayerID, types.Event{Name: "error", Data: types.ErrorMsg{Message: ue.Error()}})
			return
		}
		// Internal consistency failure: log, drop the event, leave state alone.
		s.deps.Logger.Error("dropping command",
			zap.String("session_id", s.state.SessionID),
			zap.String("player_id", msg.PlayerID),
			zap.String("command", string(msg.Cmd.Type)),
			zap.Error(err))
		return
	}
	s.state = newState

	for _, e := range events {
		s.emit(msg.PlayerID, e)
	}

	switch msg.Cmd.Type {
	case engine.CmdDisconnect:
		// Immediate teardown: no reconnection grace period.
		s.closed = true
	case engine.CmdEndGame:
		s.recordScore(msg.PlayerID, msg.Cmd.Score)
		s.ended[msg.PlayerID] = true
		if len(s.ended) >= 2 {
			s.closed = true
		}
	}
}

// emit routes one engine event to the room, the caller, or the opponent.
func (s *Session) emit(callerID string, e engine.Event) {
	var event types.Event
	switch e.Type {
	case engine.EvtStateInfo:
		event = types.Event{Name: "state_info", Data: types.StateInfo{Ready: e.Ready}}
	case engine.EvtLabel:
		event = types.Event{Name: "label", Data: types.Label{Text: s.translate(e.Label)}}
	case engine.EvtPrediction:
		event = types.Event{Name: "prediction", Data: types.Prediction{
			ConfidenceMap: e.Prediction.Confidence,
			Guess:         e.Prediction.Guess,
			CorrectLabel:  e.Prediction.CorrectLabel,
			HasWon:        e.Prediction.HasWon,
		}}
	case engine.EvtRoundOver:
		event = types.Event{Name: "round_over", Data: types.RoundOver{RoundOver: true}}
	case engine.EvtEndGame:
		event = types.Event{Name: "end_game", Data: types.EndGame{Score: e.Score, PlayerID: e.PlayerID}}
	case engine.EvtPlayerDisconnected:
		event = types.Event{Name: "player_disconnected", Data: types.PlayerDisconnected{}}
	default:
		s.deps.Logger.Error("unroutable engine event",
			zap.String("session_id", s.state.SessionID),
			zap.String("event", string(e.Type)))
		return
	}

	switch e.Audience {
	case engine.ToRoom:
		s.broadcast(event)
	case engine.ToCaller:
		s.sendTo(callerID, event)
	case engine.ToOpponent:
		for id := range s.outboxes {
			if id != callerID {
				s.sendTo(id, event)
			}
		}
	}
}

func (s *Session) translate(label string) string {
	if s.deps.Translator == nil {
		return label
	}
	translated, err := s.deps.Translator.Translate(label)
	if err != nil {
		s.deps.Logger.Warn("label translation failed",
			zap.String("session_id", s.state.SessionID),
			zap.String("label", label),
			zap.Error(err))
		return label
	}
	return translated
}

func (s *Session) recordScore(playerID string, score int) {
	if s.deps.Scores == nil {
		return
	}
	if err := s.deps.Scores.RecordScore(playerID, score, time.Now(), s.deps.Difficulty); err != nil {
		s.deps.Logger.Error("score write failed",
			zap.String("session_id", s.state.SessionID),
			zap.String("player_id", playerID),
			zap.Error(err))
		s.sendTo(playerID, types.Event{Name: "error", Data: types.ErrorMsg{Message: "could not record score"}})
	}
}

func (s *Session) broadcast(event types.Event) {
	for id := range s.outboxes {
		s.sendTo(id, event)
	}
}

func (s *Session) sendTo(playerID string, event types.Event) {
	ch, ok := s.outboxes[playerID]
	if !ok {
		return
	}
	select {
	case ch <- event:
	default:
		// The writer pump stopped draining. Drop the event rather than
		// block every other player in the session.
		s.deps.Logger.Warn("outbox full, dropping event",
			zap.String("session_id", s.state.SessionID),
			zap.String("player_id", playerID),
			zap.String("event", event.Name))
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.outboxes {
		close(ch)
		delete(s.outboxes, id)
	}
	s.cancel()
	if s.deps.OnClose != nil {
		s.deps.OnClose(s.state.SessionID)
	}
}
