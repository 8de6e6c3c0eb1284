package session

import (
	"context"
	"testing"
	"time"

	"github.com/sketchduel/backend/internal/engine"
	"github.com/sketchduel/backend/pkg/types"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan types.Event, within time.Duration) types.Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return event
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return types.Event{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan types.Event, within time.Duration) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, e)
	case <-time.After(within):
		// good: quiet channel
	}
}

func recvClosed(t *testing.T, ch <-chan types.Event, within time.Duration) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(within):
			t.Fatalf("timed out waiting for outbox close")
		}
	}
}

type echoTranslator struct{}

func (echoTranslator) Translate(label string) (string, error) { return "no:" + label, nil }

type scoreWrite struct {
	playerID   string
	difficulty string
}

type memScores struct {
	recorded chan scoreWrite
}

func (m *memScores) RecordScore(playerID string, score int, date time.Time, difficulty string) error {
	m.recorded <- scoreWrite{playerID: playerID, difficulty: difficulty}
	return nil
}

// startPair spins up a session with players A and B attached, draining the
// join handshake events from both outboxes.
func startPair(t *testing.T, labels []string, deps Deps) (*Session, chan types.Event, chan types.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	state := engine.NewState("g1", "", labels, "A", time.Now())
	outA := make(chan types.Event, 16)
	s := New(ctx, state, outA, deps)

	infoA := recvEvent(t, outA, 100*time.Millisecond)
	if infoA.Name != "player_info" {
		t.Fatalf("want player_info first, got %s", infoA.Name)
	}
	if infoA.Data.(types.PlayerInfo).Slot != "player_1" {
		t.Fatalf("A should be player_1, got %+v", infoA.Data)
	}
	stateA := recvEvent(t, outA, 100*time.Millisecond)
	if stateA.Name != "state_info" || stateA.Data.(types.StateInfo).Ready {
		t.Fatalf("A should see ready=false before pairing, got %+v", stateA)
	}

	outB := make(chan types.Event, 16)
	reply := make(chan error, 1)
	s.Inbox() <- Attach{PlayerID: "B", Outbox: outB, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	infoB := recvEvent(t, outB, 100*time.Millisecond)
	if infoB.Name != "player_info" || infoB.Data.(types.PlayerInfo).Slot != "player_2" {
		t.Fatalf("B should be player_2, got %+v", infoB)
	}
	for _, ch := range []chan types.Event{outA, outB} {
		e := recvEvent(t, ch, 100*time.Millisecond)
		if e.Name != "state_info" || !e.Data.(types.StateInfo).Ready {
			t.Fatalf("both players should see ready=true after pairing, got %+v", e)
		}
	}

	return s, outA, outB
}

func startRound(t *testing.T, s *Session, outA, outB chan types.Event, wantLabel string) {
	t.Helper()
	s.Inbox() <- FromPlayer{PlayerID: "A", Cmd: engine.Command{Type: engine.CmdRequestLabel, PlayerID: "A"}}
	for _, ch := range []chan types.Event{outA, outB} {
		label := recvEvent(t, ch, 100*time.Millisecond)
		if label.Name != "label" || label.Data.(types.Label).Text != wantLabel {
			t.Fatalf("want label %q to room, got %+v", wantLabel, label)
		}
		state := recvEvent(t, ch, 100*time.Millisecond)
		if state.Name != "state_info" || !state.Data.(types.StateInfo).Ready {
			t.Fatalf("want ready state_info with the label, got %+v", state)
		}
	}
}

func submit(s *Session, playerID, guess string, timeLeft float64) {
	s.Inbox() <- FromPlayer{PlayerID: playerID, Cmd: engine.Command{
		Type: engine.CmdSubmit, PlayerID: playerID,
		Guess: guess, TimeLeft: timeLeft,
		Confidence: map[string]float64{guess: 0.88},
	}}
}

func TestSession_WinScenario_SingleRoundOver(t *testing.T) {
	s, outA, outB := startPair(t, []string{"angel", "house"}, Deps{Translator: echoTranslator{}})
	startRound(t, s, outA, outB, "no:angel")

	// A wins first: prediction to A only, no round_over yet
	submit(s, "A", "angel", 1)
	pred := recvEvent(t, outA, 100*time.Millisecond)
	if pred.Name != "prediction" || !pred.Data.(types.Prediction).HasWon {
		t.Fatalf("A should get a winning prediction, got %+v", pred)
	}
	recvNoEvent(t, outA, 50*time.Millisecond)
	recvNoEvent(t, outB, 50*time.Millisecond)

	// B finishes: exactly one round_over to each player, not one per submit
	submit(s, "B", "angel", 1)
	predB := recvEvent(t, outB, 100*time.Millisecond)
	if predB.Name != "prediction" || !predB.Data.(types.Prediction).HasWon {
		t.Fatalf("B should get a winning prediction, got %+v", predB)
	}
	for _, ch := range []chan types.Event{outA, outB} {
		over := recvEvent(t, ch, 100*time.Millisecond)
		if over.Name != "round_over" || !over.Data.(types.RoundOver).RoundOver {
			t.Fatalf("want round_over, got %+v", over)
		}
		recvNoEvent(t, ch, 50*time.Millisecond)
	}

	reply := make(chan View, 1)
	s.Inbox() <- GetView{Reply: reply}
	view := <-reply
	if view.State.RoundNumber != 2 {
		t.Fatalf("round_number should be 2 after round one, got %d", view.State.RoundNumber)
	}
}

func TestSession_TimeoutScenario_NoPredictionForTimedOutPlayer(t *testing.T) {
	s, outA, outB := startPair(t, []string{"angel"}, Deps{Translator: echoTranslator{}})
	startRound(t, s, outA, outB, "no:angel")

	// A times out: silent state update only
	submit(s, "A", "angel", 0)
	recvNoEvent(t, outA, 50*time.Millisecond)

	// B wins: B sees prediction then round_over; A sees only round_over
	submit(s, "B", "angel", 1)
	predB := recvEvent(t, outB, 100*time.Millisecond)
	if predB.Name != "prediction" || !predB.Data.(types.Prediction).HasWon {
		t.Fatalf("B should get a winning prediction, got %+v", predB)
	}
	overB := recvEvent(t, outB, 100*time.Millisecond)
	if overB.Name != "round_over" {
		t.Fatalf("B should get round_over after prediction, got %+v", overB)
	}
	overA := recvEvent(t, outA, 100*time.Millisecond)
	if overA.Name != "round_over" {
		t.Fatalf("A should get only round_over, got %+v", overA)
	}
}

func TestSession_WrongGuessLeavesPlayerDrawing(t *testing.T) {
	s, outA, outB := startPair(t, []string{"angel"}, Deps{Translator: echoTranslator{}})
	startRound(t, s, outA, outB, "no:angel")

	submit(s, "A", "house", 3)
	pred := recvEvent(t, outA, 100*time.Millisecond)
	if pred.Name != "prediction" || pred.Data.(types.Prediction).HasWon {
		t.Fatalf("wrong guess must not win, got %+v", pred)
	}

	// still drawing: a later correct guess in the same round wins
	submit(s, "A", "angel", 2)
	pred = recvEvent(t, outA, 100*time.Millisecond)
	if !pred.Data.(types.Prediction).HasWon {
		t.Fatalf("correct retry should win, got %+v", pred)
	}
}

func TestSession_UserErrorReportedToOffenderOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := engine.NewState("g1", "", []string{"angel"}, "A", time.Now())
	outA := make(chan types.Event, 16)
	s := New(ctx, state, outA, Deps{})
	_ = recvEvent(t, outA, 100*time.Millisecond) // player_info
	_ = recvEvent(t, outA, 100*time.Millisecond) // state_info

	// no opponent yet: request_label is a user error, state unchanged
	s.Inbox() <- FromPlayer{PlayerID: "A", Cmd: engine.Command{Type: engine.CmdRequestLabel, PlayerID: "A"}}
	e := recvEvent(t, outA, 100*time.Millisecond)
	if e.Name != "error" {
		t.Fatalf("want error event, got %+v", e)
	}

	reply := make(chan View, 1)
	s.Inbox() <- GetView{Reply: reply}
	view := <-reply
	if view.State.Players[0].State != engine.StateWaiting {
		t.Fatalf("state must be unchanged after user error, got %v", view.State.Players[0].State)
	}
}

func TestSession_DisconnectNotifiesPeerAndTearsDown(t *testing.T) {
	closed := make(chan string, 1)
	s, outA, outB := startPair(t, []string{"angel"}, Deps{
		Translator: echoTranslator{},
		OnClose:    func(id string) { closed <- id },
	})

	s.Inbox() <- FromPlayer{PlayerID: "A", Cmd: engine.Command{Type: engine.CmdDisconnect, PlayerID: "A"}}

	e := recvEvent(t, outB, 100*time.Millisecond)
	if e.Name != "player_disconnected" {
		t.Fatalf("B should be told the peer left, got %+v", e)
	}

	// no grace period: both outboxes close and the store is told
	recvClosed(t, outA, 200*time.Millisecond)
	recvClosed(t, outB, 200*time.Millisecond)
	select {
	case id := <-closed:
		if id != "g1" {
			t.Fatalf("want close for g1, got %s", id)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("session never reported its close")
	}
}

func TestSession_EndGame_ScoreToOpponentAndRecorded(t *testing.T) {
	scores := &memScores{recorded: make(chan scoreWrite, 2)}
	s, outA, outB := startPair(t, []string{"angel"}, Deps{
		Translator: echoTranslator{},
		Scores:     scores,
		Difficulty: "medium",
	})
	startRound(t, s, outA, outB, "no:angel")
	submit(s, "A", "angel", 1)
	_ = recvEvent(t, outA, 100*time.Millisecond) // prediction
	submit(s, "B", "angel", 1)
	_ = recvEvent(t, outB, 100*time.Millisecond) // prediction
	_ = recvEvent(t, outA, 100*time.Millisecond) // round_over
	_ = recvEvent(t, outB, 100*time.Millisecond) // round_over

	s.Inbox() <- FromPlayer{PlayerID: "A", Cmd: engine.Command{Type: engine.CmdEndGame, PlayerID: "A", Score: 150}}

	e := recvEvent(t, outB, 100*time.Millisecond)
	if e.Name != "end_game" {
		t.Fatalf("end_game should go to the opponent, got %+v", e)
	}
	payload := e.Data.(types.EndGame)
	if payload.Score != 150 || payload.PlayerID != "A" {
		t.Fatalf("end_game payload mismatch: %+v", payload)
	}
	recvNoEvent(t, outA, 50*time.Millisecond)

	select {
	case w := <-scores.recorded:
		if w.playerID != "A" {
			t.Fatalf("score recorded for wrong player: %s", w.playerID)
		}
		if w.difficulty != "medium" {
			t.Fatalf("score should carry the session difficulty, got %q", w.difficulty)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("score never recorded")
	}

	// second end_game closes the session for good
	s.Inbox() <- FromPlayer{PlayerID: "B", Cmd: engine.Command{Type: engine.CmdEndGame, PlayerID: "B", Score: 90}}
	_ = recvEvent(t, outA, 100*time.Millisecond) // B's end_game relayed to A
	recvClosed(t, outA, 200*time.Millisecond)
	recvClosed(t, outB, 200*time.Millisecond)
}

func TestSession_EndGameBeforeFinalRoundIsUserError(t *testing.T) {
	s, outA, outB := startPair(t, []string{"angel", "house"}, Deps{Translator: echoTranslator{}})

	s.Inbox() <- FromPlayer{PlayerID: "A", Cmd: engine.Command{Type: engine.CmdEndGame, PlayerID: "A", Score: 10}}
	e := recvEvent(t, outA, 100*time.Millisecond)
	if e.Name != "error" {
		t.Fatalf("early end_game must be a user error, got %+v", e)
	}
	recvNoEvent(t, outB, 50*time.Millisecond)
}
