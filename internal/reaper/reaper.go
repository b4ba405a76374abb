package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/challenge"
	"github.com/DoyleJ11/island-duel-backend/internal/hub"
	"github.com/DoyleJ11/island-duel-backend/internal/presence"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
	"github.com/DoyleJ11/island-duel-backend/internal/storage"
)

// Archiver stores the final state of purged sessions.
type Archiver interface {
	RecordMatch(ctx context.Context, m storage.Match) error
}

// Connections reports whether a user has a live connection.
type Connections interface {
	Connected(user string) bool
}

type Config struct {
	Interval          time.Duration
	AbandonAfter      time.Duration
	FinishedRetention time.Duration
}

type Reaper struct {
	cfg        Config
	users      *presence.Registry
	challenges *challenge.Queue
	sessions   *hub.Hub
	conns      Connections
	archive    Archiver
	log        *zap.Logger
	now        func() time.Time
}

type Deps struct {
	Users      *presence.Registry
	Challenges *challenge.Queue
	Sessions   *hub.Hub
	Conns      Connections
	Archive    Archiver // optional
	Log        *zap.Logger
	Now        func() time.Time
}

func New(cfg Config, d Deps) *Reaper {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Reaper{
		cfg:        cfg,
		users:      d.Users,
		challenges: d.Challenges,
		sessions:   d.Sessions,
		conns:      d.Conns,
		archive:    d.Archive,
		log:        d.Log,
		now:        d.Now,
	}
}

// Report summarises one sweep.
type Report struct {
	Offline   []string
	Finished  []string
	Abandoned []string
}

func (r Report) empty() bool {
	return len(r.Offline) == 0 && len(r.Finished) == 0 && len(r.Abandoned) == 0
}

// Run sweeps every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			rep, err := r.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Warn("sweep failed", zap.Error(err))
				continue
			}
			if !rep.empty() {
				r.log.Info("sweep",
					zap.Strings("offline", rep.Offline),
					zap.Strings("finished", rep.Finished),
					zap.Strings("abandoned", rep.Abandoned))
			}
		}
	}
}

// Sweep expires stale presence, then purges finished sessions past the
// retention window and sessions nobody has been connected to for longer
// than AbandonAfter.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	rep.Offline = r.users.Sweep()

	list, err := r.sessions.List(ctx)
	if err != nil {
		return rep, err
	}

	now := r.now()
	finished := func(v session.View) bool {
		return v.State.Terminal && now.Sub(v.LastActive) > r.cfg.FinishedRetention
	}
	abandoned := func(v session.View) bool {
		return !v.State.Terminal &&
			!r.anyConnected(v.State.Players) &&
			now.Sub(v.LastActive) > r.cfg.AbandonAfter
	}

	for _, s := range list {
		v, err := s.View(ctx)
		if err != nil {
			if session.IsNotFound(err) {
				continue
			}
			return rep, err
		}

		switch {
		case finished(v):
			ok, err := r.purge(ctx, s, finished, storage.OutcomeCompleted)
			if err != nil {
				return rep, err
			}
			if ok {
				rep.Finished = append(rep.Finished, v.State.ID)
			}

		case v.State.Terminal:

		case r.anyConnected(v.State.Players):
			if err := s.Touch(ctx, now); err != nil && !session.IsNotFound(err) {
				return rep, err
			}

		case abandoned(v):
			ok, err := r.purge(ctx, s, abandoned, storage.OutcomeAbandoned)
			if err != nil {
				return rep, err
			}
			if ok {
				rep.Abandoned = append(rep.Abandoned, v.State.ID)
			}
		}
	}
	return rep, nil
}

func (r *Reaper) anyConnected(players [2]string) bool {
	return r.conns.Connected(players[0]) || r.conns.Connected(players[1])
}

// purge stops s only if cond still holds inside the session, then archives
// it and drops challenges between its players that predate it.
func (r *Reaper) purge(ctx context.Context, s *session.Session, cond func(session.View) bool, outcome string) (bool, error) {
	final, expired, err := s.Expire(ctx, cond)
	if err != nil {
		if session.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !expired {
		return false, nil
	}

	id := final.State.ID
	if r.archive != nil {
		if err := r.archive.RecordMatch(ctx, storage.MatchFromState(final.State, outcome, r.now())); err != nil {
			r.log.Warn("archive failed", zap.String("session", id), zap.Error(err))
		}
	}
	if _, err := r.sessions.Remove(ctx, id); err != nil {
		return true, err
	}
	players := final.State.Players
	r.challenges.PurgeBetween(players[0], players[1], final.Created)
	r.log.Debug("session purged", zap.String("session", id), zap.String("outcome", outcome))
	return true, nil
}
