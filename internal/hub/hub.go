package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sketchduel/backend/internal/engine"
	"github.com/sketchduel/backend/internal/session"
	"github.com/sketchduel/backend/pkg/types"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// Join pairs a connection into an open session with a matching pairing key,
// or creates a fresh session with the connection as player_1.
type Join struct {
	ConnID     string
	PairingKey string
	Outbox     chan types.Event
	Reply      chan JoinResult
}

type JoinResult struct {
	Session   *session.Session
	SessionID string
	Slot      engine.Slot
	Ready     bool
	Err       error
}

type Get struct {
	SessionID string
	Reply     chan *session.Session
}

type Remove struct {
	SessionID string
}

// Sweep deletes sessions created before the cutoff.
type Sweep struct {
	OlderThan time.Time
}

type ShutdownHub struct{}

func (Join) isHubMsg()        {}
func (Get) isHubMsg()         {}
func (Remove) isHubMsg()      {}
func (Sweep) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

// LabelProvider supplies the ordered random label sequence a new session
// plays through, drawn from the requested difficulty tier.
type LabelProvider interface {
	DrawLabels(n int, difficulty string) ([]string, error)
}

type entry struct {
	sess       *session.Session
	pairingKey string
	createdAt  time.Time
	player1    string
	open       bool
}

type Config struct {
	RoundsPerGame int
	Difficulty    string
	Logger        *zap.Logger
	Labels        LabelProvider
	SessionDeps   session.Deps
}

// Hub owns the authoritative session index. Pairing happens inside the hub
// loop, which makes the search-and-assign atomic per pairing-key bucket: two
// racing joins are handled one after the other.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*entry
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*entry),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
	// Sessions report their own death back through the store.
	h.cfg.SessionDeps.OnClose = func(sessionID string) {
		select {
		case h.inbox <- Remove{SessionID: sessionID}:
		case <-h.ctx.Done():
		}
	}

	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- h.join(msg)

			case Get:
				if e := h.sessions[msg.SessionID]; e != nil {
					msg.Reply <- e.sess
				} else {
					msg.Reply <- nil
				}

			case Remove:
				delete(h.sessions, msg.SessionID)

			case Sweep:
				h.sweep(msg.OlderThan)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) join(msg Join) JoinResult {
	// A connection that already holds an open slot in this bucket is trying
	// to fill both slots of its own session.
	for _, e := range h.sessions {
		if e.open && e.pairingKey == msg.PairingKey && e.player1 == msg.ConnID {
			return JoinResult{Err: engine.UserError{Err: engine.ErrSelfPair}}
		}
	}

	for id, e := range h.sessions {
		if !e.open || e.pairingKey != msg.PairingKey {
			continue
		}
		res, alive := h.attach(id, e, msg)
		if !alive {
			// The session closed itself (player_1 hung up) but its Remove is
			// still queued behind us. Drop the corpse and keep searching.
			h.cfg.Logger.Info("skipping dead open session", zap.String("session_id", id))
			delete(h.sessions, id)
			continue
		}
		return res
	}

	labels, err := h.cfg.Labels.DrawLabels(h.cfg.RoundsPerGame, h.cfg.Difficulty)
	if err != nil {
		return JoinResult{Err: fmt.Errorf("draw labels: %w", err)}
	}

	sessionID := uuid.NewString()
	state := engine.NewState(sessionID, msg.PairingKey, labels, msg.ConnID, time.Now())
	sess := session.New(h.ctx, state, msg.Outbox, h.cfg.SessionDeps)
	h.sessions[sessionID] = &entry{
		sess:       sess,
		pairingKey: msg.PairingKey,
		createdAt:  state.CreatedAt,
		player1:    msg.ConnID,
		open:       true,
	}

	h.cfg.Logger.Info("created session",
		zap.String("session_id", sessionID),
		zap.String("player_id", msg.ConnID))
	return JoinResult{Session: sess, SessionID: sessionID, Slot: engine.SlotPlayer1, Ready: false}
}

// attach hands the joiner to an open session's actor. Both the send and the
// reply wait are guarded by the actor's done channel: an unguarded wait here
// would wedge the whole store behind one dead session. alive=false means the
// entry is a corpse and the caller should discard it.
func (h *Hub) attach(id string, e *entry, msg Join) (res JoinResult, alive bool) {
	reply := make(chan error, 1)

	select {
	case e.sess.Inbox() <- session.Attach{PlayerID: msg.ConnID, Outbox: msg.Outbox, Reply: reply}:
	case <-e.sess.Done():
		return JoinResult{}, false
	}

	var err error
	select {
	case err = <-reply:
	case <-e.sess.Done():
		// The actor may still have answered just before dying.
		select {
		case err = <-reply:
		default:
			return JoinResult{}, false
		}
	}
	if err != nil {
		return JoinResult{Err: err}, true
	}
	e.open = false

	h.cfg.Logger.Info("paired into session",
		zap.String("session_id", id),
		zap.String("player_id", msg.ConnID))
	return JoinResult{Session: e.sess, SessionID: id, Slot: engine.SlotPlayer2, Ready: true}, true
}

func (h *Hub) sweep(olderThan time.Time) {
	for id, e := range h.sessions {
		if e.createdAt.After(olderThan) {
			continue
		}
		h.cfg.Logger.Info("reaping stale session", zap.String("session_id", id))
		stop(e.sess)
		delete(h.sessions, id)
	}
}

func (h *Hub) shutdown() {
	for id, e := range h.sessions {
		stop(e.sess)
		delete(h.sessions, id)
	}
	h.cancel()
}

// stop asks a session actor to shut down without blocking the store loop.
// A session that already closed itself may have stopped draining its inbox.
func stop(s *session.Session) {
	select {
	case s.Inbox() <- session.Shutdown{}:
	default:
	}
}
