package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
	"github.com/DoyleJ11/island-duel-backend/internal/arena"
	"github.com/DoyleJ11/island-duel-backend/internal/types"
	pubtypes "github.com/DoyleJ11/island-duel-backend/pkg/types"
)

var ErrUnknownMessage = apperr.Validation("unknown_message", "unknown message type")

type Options struct {
	// Keepalive is the heartbeat interval announced in connected-ack.
	Keepalive time.Duration
	// ReadTimeout closes connections that send nothing for this long.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Log          *zap.Logger
	Accept       *websocket.AcceptOptions
}

func (o *Options) defaults() {
	if o.Keepalive <= 0 {
		o.Keepalive = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

func Handler(a *arena.Service, opts Options) http.HandlerFunc {
	opts.defaults()

	return func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")
		client, err := a.Connect(username)
		if err != nil {
			http.Error(w, apperr.Message(err), apperr.StatusCode(err))
			return
		}
		defer a.Disconnect(client)

		conn, err := websocket.Accept(w, r, opts.Accept)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. The outbox closes when this connection is
		// replaced, dropped as too slow, or detached.
		go func() {
			defer cancel()
			for payload := range client.Outbox() {
				wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					return
				}
			}
			_ = conn.Close(websocket.StatusGoingAway, "connection released")
		}()

		_ = a.Notify(username, pubtypes.Event{
			Type:        pubtypes.EvtConnectedAck,
			Username:    username,
			KeepaliveMS: opts.Keepalive.Milliseconds(),
		})

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, opts.ReadTimeout)
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						opts.Log.Debug("read failed", zap.String("user", username), zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				replyError(a, username, "", apperr.ErrBadRequest)
				continue
			}
			if err := dispatch(ctx, a, username, cm); err != nil {
				replyError(a, username, cm.SessionID, err)
			}
		}
	}
}

// dispatch runs one client message. Every message counts as a heartbeat.
func dispatch(ctx context.Context, a *arena.Service, user string, m types.ClientMessage) error {
	if err := a.Heartbeat(user); err != nil {
		return err
	}

	var err error
	switch m.Type {
	case types.MsgHeartbeat:
	case types.MsgChallenge:
		err = a.SendChallenge(user, m.To)
	case types.MsgAccept:
		_, _, err = a.AcceptChallenge(ctx, m.From, user)
	case types.MsgJoin:
		_, err = a.Join(ctx, m.SessionID, user)
	case types.MsgChoose:
		_, err = a.Choose(ctx, m.SessionID, user, m.Choice)
	case types.MsgAct:
		_, err = a.Act(ctx, m.SessionID, user, m.Action)
	case types.MsgSync:
		err = a.Sync(ctx, m.SessionID, user)
	default:
		err = ErrUnknownMessage
	}
	return err
}

func replyError(a *arena.Service, user, sessionID string, err error) {
	ev := pubtypes.ErrorEvent(apperr.CodeOf(err), apperr.Message(err))
	ev.SessionID = sessionID
	_ = a.Notify(user, ev)
}
