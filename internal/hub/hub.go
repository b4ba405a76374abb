package hub

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	State engine.State
	Reply chan *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

type RemoveSession struct {
	ID    string
	Reply chan bool
}

type ListSessions struct {
	Reply chan []*session.Session
}

type ShutdownHub struct {
	Done chan struct{}
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

// Hub is the session manager: it owns the id -> session map.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	deps     session.Deps
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the hub loop. deps are handed to every session it creates.
func NewHub(parent context.Context, deps session.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		deps:     deps,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
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
			case CreateSession:
				if s := h.sessions[msg.State.ID]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.State, h.deps)
				h.sessions[msg.State.ID] = s
				h.log.Info("session created",
					zap.String("session", msg.State.ID),
					zap.Strings("players", msg.State.Players[:]))
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				s, ok := h.sessions[msg.ID]
				if ok {
					delete(h.sessions, msg.ID)
					s.Close()
					h.log.Info("session removed", zap.String("session", msg.ID))
				}
				if msg.Reply != nil {
					msg.Reply <- ok
				}

			case ListSessions:
				out := make([]*session.Session, 0, len(h.sessions))
				for _, s := range h.sessions {
					out = append(out, s)
				}
				slices.SortFunc(out, func(a, b *session.Session) int { return strings.Compare(a.ID(), b.ID()) })
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				close(msg.Done)
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
	}
}
