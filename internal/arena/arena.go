// Package arena is the single entry point the HTTP and websocket transports
// delegate to. It ties presence, challenges, live connections and game
// sessions together; game rules live only in the engine.
package arena

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/challenge"
	"github.com/DoyleJ11/island-duel-backend/internal/conn"
	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/internal/hub"
	"github.com/DoyleJ11/island-duel-backend/internal/presence"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
	"github.com/DoyleJ11/island-duel-backend/pkg/types"
)

const outboxSize = 32

type Deps struct {
	Users      *presence.Registry
	Challenges *challenge.Queue
	Sessions   *hub.Hub
	Conns      *conn.Registry
	Log        *zap.Logger
	// NewID generates session and connection ids. Defaults to uuid.NewString.
	NewID func() string
	// RejectDuplicates refuses a second live connection for the same user.
	RejectDuplicates bool
}

type Service struct {
	users      *presence.Registry
	challenges *challenge.Queue
	sessions   *hub.Hub
	conns      *conn.Registry
	log        *zap.Logger
	newID      func() string
	rejectDup  bool
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Service{
		users:      d.Users,
		challenges: d.Challenges,
		sessions:   d.Sessions,
		conns:      d.Conns,
		log:        d.Log,
		newID:      d.NewID,
		rejectDup:  d.RejectDuplicates,
	}
}

// EstablishUser registers username or reactivates it.
func (s *Service) EstablishUser(username string) (reconnected bool, err error) {
	reconnected, err = s.users.Register(username)
	if err != nil {
		return false, err
	}
	s.log.Info("user established", zap.String("user", username), zap.Bool("reconnected", reconnected))
	return reconnected, nil
}

func (s *Service) Online() []string { return s.users.ListOnline() }

func (s *Service) Users() []presence.User { return s.users.All() }

func (s *Service) Heartbeat(username string) error { return s.users.Heartbeat(username) }

// SendChallenge queues a challenge from one known user to another and pushes
// it to the recipient if they are connected.
func (s *Service) SendChallenge(from, to string) error {
	if err := s.users.Heartbeat(from); err != nil {
		return err
	}
	if !s.users.Exists(to) {
		return presence.ErrUserNotFound
	}
	added, err := s.challenges.Add(from, to)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	s.log.Info("challenge sent", zap.String("from", from), zap.String("to", to))
	s.notify(to, types.Event{Type: types.EvtChallengeReceived, From: from})
	return nil
}

// Pending lists the challenges waiting for username. It counts as activity.
func (s *Service) Pending(username string) ([]challenge.Challenge, error) {
	if err := s.users.Heartbeat(username); err != nil {
		return nil, err
	}
	return s.challenges.Pending(username), nil
}

// AcceptChallenge consumes from's challenge to `to` and starts a session
// between them. It returns the new session id and the acceptor's opponent.
func (s *Service) AcceptChallenge(ctx context.Context, from, to string) (sessionID, opponent string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if err := s.users.Heartbeat(to); err != nil {
		return "", "", err
	}
	if _, err := s.challenges.Take(from, to); err != nil {
		return "", "", err
	}

	// Once the challenge is taken the session must be created, so a caller
	// going away mid-request cannot cancel half of the accept.
	id := s.newID()
	if _, err := s.sessions.Create(context.WithoutCancel(ctx), engine.NewState(id, from, to)); err != nil {
		_, _ = s.challenges.Add(from, to)
		return "", "", err
	}
	s.log.Info("challenge accepted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("session", id))

	s.notify(from, types.Event{Type: types.EvtSessionStarted, SessionID: id, Opponent: to})
	s.notify(to, types.Event{Type: types.EvtSessionStarted, SessionID: id, Opponent: from})
	return id, from, nil
}

func (s *Service) Join(ctx context.Context, sessionID, username string) (types.SessionState, error) {
	return s.submit(ctx, sessionID, engine.Command{Type: engine.CmdJoin, Player: username})
}

func (s *Service) Choose(ctx context.Context, sessionID, username, choice string) (types.SessionState, error) {
	return s.submit(ctx, sessionID, engine.Command{
		Type:   engine.CmdChoose,
		Player: username,
		Choice: engine.Choice(choice),
	})
}

func (s *Service) Act(ctx context.Context, sessionID, username, action string) (types.SessionState, error) {
	return s.submit(ctx, sessionID, engine.Command{
		Type:   engine.CmdAct,
		Player: username,
		Action: engine.Action(action),
	})
}

// State returns the session's current snapshot. It changes nothing.
func (s *Service) State(ctx context.Context, sessionID string) (types.SessionState, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return types.SessionState{}, err
	}
	v, err := sess.View(ctx)
	if err != nil {
		return types.SessionState{}, err
	}
	return session.Snapshot(v.State, v.Version), nil
}

// Sync pushes the session's snapshot to username's live connection.
func (s *Service) Sync(ctx context.Context, sessionID, username string) error {
	if err := s.users.Heartbeat(username); err != nil {
		return err
	}
	snap, err := s.State(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.conns.Push(username, types.Event{Type: types.EvtSessionState, SessionID: sessionID, State: &snap})
}

func (s *Service) submit(ctx context.Context, sessionID string, cmd engine.Command) (types.SessionState, error) {
	if err := s.users.Heartbeat(cmd.Player); err != nil {
		return types.SessionState{}, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return types.SessionState{}, err
	}
	v, err := sess.Do(ctx, cmd)
	if err != nil {
		return types.SessionState{}, err
	}
	return session.Snapshot(v.State, v.Version), nil
}

// Connect binds a new live connection to username, registering the name
// if it is unknown.
func (s *Service) Connect(username string) (*conn.Client, error) {
	if err := presence.ValidateUsername(username); err != nil {
		return nil, err
	}
	if s.rejectDup && s.conns.Connected(username) {
		return nil, presence.ErrUsernameTaken
	}
	if s.users.Exists(username) {
		if err := s.users.Heartbeat(username); err != nil {
			return nil, err
		}
	} else if _, err := s.EstablishUser(username); err != nil {
		return nil, err
	}

	c := conn.NewClient(username, s.newID(), outboxSize)
	if replaced := s.conns.Attach(c); replaced {
		s.log.Info("connection replaced", zap.String("user", username))
	}
	s.log.Debug("connected", zap.String("user", username), zap.String("conn", c.ID))
	return c, nil
}

// Disconnect releases c's handle. Presence and game state are untouched.
func (s *Service) Disconnect(c *conn.Client) {
	s.conns.Detach(c)
	s.log.Debug("disconnected", zap.String("user", c.User), zap.String("conn", c.ID))
}

// Notify pushes ev to username if connected.
func (s *Service) Notify(username string, ev types.Event) error {
	return s.conns.Push(username, ev)
}

func (s *Service) notify(user string, ev types.Event) {
	err := s.conns.Push(user, ev)
	if err != nil && !isNotConnected(err) {
		s.log.Debug("push failed", zap.String("user", user), zap.String("type", ev.Type), zap.Error(err))
	}
}

func isNotConnected(err error) bool { return errors.Is(err, conn.ErrNotConnected) }
