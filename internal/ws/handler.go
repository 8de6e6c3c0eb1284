package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sketchduel/backend/internal/classifier"
	"github.com/sketchduel/backend/internal/engine"
	"github.com/sketchduel/backend/internal/hub"
	"github.com/sketchduel/backend/internal/session"
	"github.com/sketchduel/backend/internal/types"
	ptypes "github.com/sketchduel/backend/pkg/types"
	"go.uber.org/zap"
)

type Deps struct {
	Hub         *hub.Hub
	Classifier  classifier.Classifier
	Constraints classifier.Constraints
	Logger      *zap.Logger
}

// Handler is the session gateway: one goroutine per connection reading
// inbound events in arrival order and dispatching them into the store.
func Handler(d Deps) http.HandlerFunc {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		g := &gateway{
			deps:   d,
			conn:   conn,
			connID: uuid.NewString(),
			outbox: make(chan ptypes.Event, 16),
		}
		// Once a join hands the outbox to a session, the session actor owns
		// closing it. Until then it is ours to release.
		defer func() {
			if g.sessionID == "" {
				close(g.outbox)
			}
		}()

		// Writer goroutine: drains game events addressed to this connection.
		// The session actor closes the outbox when the session dies, which
		// also tells the client the room emptied out.
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for event := range g.outbox {
				payload, err := json.Marshal(event)
				if err != nil {
					d.Logger.Error("marshal outbound event", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader loop: events from one connection are processed in order.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				g.disconnect()
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				g.sendError(r.Context(), "bad json")
				continue
			}

			g.handle(r.Context(), cm)
		}
	}
}

type gateway struct {
	deps      Deps
	conn      *websocket.Conn
	connID    string
	outbox    chan ptypes.Event
	sess      *session.Session
	sessionID string
}

func (g *gateway) handle(ctx context.Context, cm types.ClientMessage) {
	switch cm.Type {
	case "join":
		g.join(ctx, cm)

	case "request_label":
		if !g.inSession(ctx, cm.SessionID) {
			return
		}
		g.dispatch(engine.Command{Type: engine.CmdRequestLabel, PlayerID: g.connID})

	case "submit":
		if !g.inSession(ctx, cm.SessionID) {
			return
		}
		g.submit(ctx, cm)

	case "end_game":
		if !g.inSession(ctx, cm.SessionID) {
			return
		}
		g.dispatch(engine.Command{Type: engine.CmdEndGame, PlayerID: g.connID, Score: cm.Score})

	default:
		g.sendError(ctx, "unknown event type")
	}
}

func (g *gateway) join(ctx context.Context, cm types.ClientMessage) {
	if g.sess != nil {
		g.sendError(ctx, "already in a session")
		return
	}

	reply := make(chan hub.JoinResult, 1)
	g.deps.Hub.Inbox() <- hub.Join{
		ConnID:     g.connID,
		PairingKey: cm.PairingKey,
		Outbox:     g.outbox,
		Reply:      reply,
	}
	res := <-reply
	if res.Err != nil {
		var ue engine.UserError
		if errors.As(res.Err, &ue) {
			g.sendError(ctx, ue.Error())
		} else {
			g.deps.Logger.Error("join failed", zap.String("conn_id", g.connID), zap.Error(res.Err))
			g.sendError(ctx, "could not join a game, try again")
		}
		return
	}

	g.sess = res.Session
	g.sessionID = res.SessionID
}

func (g *gateway) submit(ctx context.Context, cm types.ClientMessage) {
	imageData, err := base64.StdEncoding.DecodeString(cm.Image)
	if err != nil {
		g.sendError(ctx, "image is not valid base64")
		return
	}
	if err := g.deps.Constraints.Validate(imageData); err != nil {
		g.sendError(ctx, err.Error())
		return
	}

	// Classification runs here, on the per-connection path, so a slow
	// classifier call never stalls other sessions' events.
	pred, err := g.deps.Classifier.Predict(ctx, imageData)
	if err != nil {
		g.deps.Logger.Warn("classification failed",
			zap.String("conn_id", g.connID),
			zap.String("session_id", g.sessionID),
			zap.Error(err))
		g.sendError(ctx, "classification unavailable, please retry")
		return
	}

	g.dispatch(engine.Command{
		Type:       engine.CmdSubmit,
		PlayerID:   g.connID,
		Guess:      pred.BestGuess,
		Confidence: pred.Confidence,
		TimeLeft:   cm.TimeLeft,
	})
}

func (g *gateway) disconnect() {
	if g.sess == nil {
		return
	}
	g.dispatch(engine.Command{Type: engine.CmdDisconnect, PlayerID: g.connID})
	g.sess = nil
}

func (g *gateway) inSession(ctx context.Context, sessionID string) bool {
	if g.sess == nil {
		g.sendError(ctx, "join a game first")
		return false
	}
	if sessionID != g.sessionID {
		g.sendError(ctx, "session_id invalid or expired")
		return false
	}
	return true
}

func (g *gateway) dispatch(cmd engine.Command) {
	m := session.FromPlayer{PlayerID: g.connID, Cmd: cmd}

	// A disconnect must not be lost: an undelivered one leaves a zombie
	// session whose survivor is never told. Block until the actor takes it
	// or is proven dead.
	if cmd.Type == engine.CmdDisconnect {
		select {
		case g.sess.Inbox() <- m:
		case <-g.sess.Done():
		}
		return
	}

	select {
	case g.sess.Inbox() <- m:
	default:
		// Session inbox saturated or the session already shut down.
		g.deps.Logger.Warn("dropping inbound command",
			zap.String("conn_id", g.connID),
			zap.String("session_id", g.sessionID),
			zap.String("command", string(cmd.Type)))
	}
}

// sendError writes straight to the socket. User errors must reach the
// offending connection even before it has joined a session.
func (g *gateway) sendError(ctx context.Context, message string) {
	payload, err := json.Marshal(ptypes.Event{Name: "error", Data: ptypes.ErrorMsg{Message: message}})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = g.conn.Write(writeCtx, websocket.MessageText, payload)
}
