package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/pkg/types"
)

var ErrNotFound = apperr.NotFound("session_not_found", "session not found")

type Msg interface{ isSessionMsg() }

type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

// Touch records that a participant was seen connected at At.
type Touch struct{ At time.Time }

func (Touch) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Expire stops the session if Cond still holds for its current view. The
// check and the stop happen on the loop, so no command can slip in between.
type Expire struct {
	Cond  func(View) bool
	Reply chan ExpireResult
}

func (Expire) isSessionMsg() {}

type ExpireResult struct {
	View    View
	Expired bool
}

type View struct {
	Version    int
	State      engine.State
	Created    time.Time
	LastActive time.Time
}

type Result struct {
	View View
	Err  error
}

// Notifier delivers a message to a user's live connection, if any.
type Notifier interface {
	Push(user string, v any) error
}

type Deps struct {
	Notifier Notifier
	Picker   engine.Picker
	Log      *zap.Logger
	Now      func() time.Time
}

// Session owns one game's state. All transitions run on its loop
// goroutine, one at a time.
type Session struct {
	id         string
	inbox      chan Msg
	state      engine.State
	version    int
	created    time.Time
	lastActive time.Time
	deps       Deps
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, initial engine.State, deps Deps) *Session {
	if deps.Picker == nil {
		deps.Picker = engine.DefaultPicker
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(parent)
	now := deps.Now()

	s := &Session{
		id:         initial.ID,
		inbox:      make(chan Msg, 64),
		state:      initial,
		created:    now,
		lastActive: now,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.deps.Log = deps.Log.With(zap.String("session", initial.ID))

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Inbox exposes the inbox so tests or the hub can send messages directly.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session stops accepting messages.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) Close() { s.cancel() }

// Do runs cmd through the state machine and returns the resulting view.
func (s *Session) Do(ctx context.Context, cmd engine.Command) (View, error) {
	reply := make(chan Result, 1)
	if err := s.send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case r := <-reply:
		return r.View, r.Err
	case <-s.ctx.Done():
		return View{}, ErrNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// View returns the current state without changing anything.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.ctx.Done():
		return View{}, ErrNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (s *Session) Touch(ctx context.Context, at time.Time) error {
	return s.send(ctx, Touch{At: at})
}

// Expire asks the session to stop if cond holds for its current view. The
// returned view is the final one when expired is true.
func (s *Session) Expire(ctx context.Context, cond func(View) bool) (View, bool, error) {
	reply := make(chan ExpireResult, 1)
	if err := s.send(ctx, Expire{Cond: cond, Reply: reply}); err != nil {
		return View{}, false, err
	}
	select {
	case r := <-reply:
		return r.View, r.Expired, nil
	case <-s.ctx.Done():
		// The reply is buffered before the loop stops.
		select {
		case r := <-reply:
			return r.View, r.Expired, nil
		default:
		}
		return View{}, false, ErrNotFound
	case <-ctx.Done():
		return View{}, false, ctx.Err()
	}
}

func (s *Session) send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case FromClient:
				msg.Reply <- s.apply(msg.Cmd)

			case GetState:
				msg.Reply <- s.view()

			case Touch:
				if msg.At.After(s.lastActive) {
					s.lastActive = msg.At
				}

			case Expire:
				v := s.view()
				if !msg.Cond(v) {
					msg.Reply <- ExpireResult{View: v}
					continue
				}
				msg.Reply <- ExpireResult{View: v, Expired: true}
				s.cancel()
				return

			case Shutdown:
				s.cancel()
				return
			}
		}
	}
}

func (s *Session) apply(cmd engine.Command) Result {
	log := s.deps.Log
	s.lastActive = s.deps.Now()

	events, next, err := engine.Apply(s.state, cmd, s.deps.Picker)
	if err != nil {
		log.Debug("command rejected",
			zap.String("type", string(cmd.Type)),
			zap.String("user", cmd.Player),
			zap.Error(err))
		return Result{View: s.view(), Err: err}
	}

	if events == nil {
		// Accepted without change: a resume. Only the caller needs the state.
		if cmd.Type == engine.CmdJoin {
			s.push(cmd.Player, Snapshot(s.state, s.version))
		}
		return Result{View: s.view()}
	}

	s.state = next
	s.version++
	for _, ev := range events {
		log.Debug("event",
			zap.String("type", string(ev.Type)),
			zap.String("player", ev.Player),
			zap.String("target", ev.Target),
			zap.Int("value", ev.Value),
			zap.Int("version", s.version))
	}
	if engine.ContainsEvent(events, engine.EvtGameCompleted) {
		log.Info("game completed", zap.String("winner", s.state.Winner))
	}

	s.broadcast(Snapshot(s.state, s.version))
	return Result{View: s.view()}
}

func (s *Session) view() View {
	return View{Version: s.version, State: s.state.Clone(), Created: s.created, LastActive: s.lastActive}
}

// broadcast sends the full snapshot to every joined participant.
func (s *Session) broadcast(snap types.SessionState) {
	for _, user := range s.state.Joined {
		s.push(user, snap)
	}
}

func (s *Session) push(user string, snap types.SessionState) {
	if s.deps.Notifier == nil {
		return
	}
	err := s.deps.Notifier.Push(user, types.Event{
		Type:      types.EvtSessionState,
		SessionID: s.id,
		State:     &snap,
	})
	if err != nil && apperr.CodeOf(err) != "not_connected" {
		s.deps.Log.Debug("snapshot not delivered", zap.String("user", user), zap.Error(err))
	}
}

// IsNotFound reports whether err means the session is gone.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
