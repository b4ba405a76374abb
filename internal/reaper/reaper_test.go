package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/island-duel-backend/internal/challenge"
	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/internal/hub"
	"github.com/DoyleJ11/island-duel-backend/internal/presence"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
	"github.com/DoyleJ11/island-duel-backend/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeConns map[string]bool

func (f fakeConns) Connected(user string) bool { return f[user] }

type fakeArchive struct {
	mu      sync.Mutex
	matches []storage.Match
}

func (a *fakeArchive) RecordMatch(_ context.Context, m storage.Match) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matches = append(a.matches, m)
	return nil
}

type fixture struct {
	r          *Reaper
	clock      *fakeClock
	users      *presence.Registry
	challenges *challenge.Queue
	sessions   *hub.Hub
	conns      fakeConns
	archive    *fakeArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		clock:   &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		conns:   fakeConns{},
		archive: &fakeArchive{},
	}
	f.users = presence.NewRegistry(30*time.Second, presence.WithClock(f.clock.Now))
	f.challenges = challenge.NewQueue(f.clock.Now)
	f.sessions = hub.NewHub(ctx, session.Deps{Now: f.clock.Now})
	f.r = New(Config{
		Interval:          time.Millisecond,
		AbandonAfter:      10 * time.Minute,
		FinishedRetention: 30 * time.Second,
	}, Deps{
		Users:      f.users,
		Challenges: f.challenges,
		Sessions:   f.sessions,
		Conns:      f.conns,
		Archive:    f.archive,
		Now:        f.clock.Now,
	})
	return f
}

func (f *fixture) create(t *testing.T, st engine.State) {
	t.Helper()
	_, err := f.sessions.Create(context.Background(), st)
	require.NoError(t, err)
}

func (f *fixture) sweep(t *testing.T) Report {
	t.Helper()
	rep, err := f.r.Sweep(context.Background())
	require.NoError(t, err)
	return rep
}

func TestSweep_FlagsStaleUsersOffline(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.Register("alice")
	require.NoError(t, err)

	assert.Empty(t, f.sweep(t).Offline)

	f.clock.Advance(31 * time.Second)
	assert.Equal(t, []string{"alice"}, f.sweep(t).Offline)
	assert.Empty(t, f.sweep(t).Offline, "already offline")
}

func TestSweep_PurgesAbandonedSession(t *testing.T) {
	f := newFixture(t)
	f.create(t, engine.NewState("g1", "alice", "bob"))
	_, err := f.challenges.Add("bob", "alice")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	assert.Empty(t, f.sweep(t).Abandoned, "threshold is exclusive")

	f.clock.Advance(time.Second)
	assert.Equal(t, []string{"g1"}, f.sweep(t).Abandoned)

	_, err = f.sessions.Get(context.Background(), "g1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, f.challenges.Pending("alice"))

	require.Len(t, f.archive.matches, 1)
	assert.Equal(t, storage.OutcomeAbandoned, f.archive.matches[0].Outcome)
	assert.Equal(t, "g1", f.archive.matches[0].SessionID)
}

func TestSweep_ConnectedParticipantKeepsSessionAlive(t *testing.T) {
	f := newFixture(t)
	f.create(t, engine.NewState("g1", "alice", "bob"))
	f.conns["bob"] = true

	f.clock.Advance(11 * time.Minute)
	assert.Empty(t, f.sweep(t).Abandoned)

	// The abandonment clock starts from the last sweep that saw bob.
	delete(f.conns, "bob")
	f.clock.Advance(5 * time.Minute)
	assert.Empty(t, f.sweep(t).Abandoned)

	f.clock.Advance(6 * time.Minute)
	assert.Equal(t, []string{"g1"}, f.sweep(t).Abandoned)
}

func TestSweep_TerminalSessionRetainedThenPurged(t *testing.T) {
	f := newFixture(t)
	st := engine.NewState("g1", "alice", "bob")
	st.Terminal = true
	st.Winner = "alice"
	f.create(t, st)
	f.conns["alice"] = true

	f.clock.Advance(20 * time.Second)
	assert.Empty(t, f.sweep(t).Finished)

	f.clock.Advance(15 * time.Second)
	rep := f.sweep(t)
	assert.Equal(t, []string{"g1"}, rep.Finished)
	assert.Empty(t, rep.Abandoned)

	require.Len(t, f.archive.matches, 1)
	assert.Equal(t, storage.OutcomeCompleted, f.archive.matches[0].Outcome)
	assert.Equal(t, "alice", f.archive.matches[0].Winner)
}

func TestSweep_WithoutArchive(t *testing.T) {
	f := newFixture(t)
	f.r.archive = nil
	f.create(t, engine.NewState("g1", "alice", "bob"))

	f.clock.Advance(time.Hour)
	assert.Equal(t, []string{"g1"}, f.sweep(t).Abandoned)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop")
	}
}

func TestSweep_KeepsChallengesSentAfterSessionStarted(t *testing.T) {
	f := newFixture(t)
	st := engine.NewState("g1", "alice", "bob")
	st.Terminal = true
	f.create(t, st)
	_, err := f.challenges.Add("bob", "alice")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	_, err = f.challenges.Add("alice", "bob")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	assert.Equal(t, []string{"g1"}, f.sweep(t).Finished)

	assert.Empty(t, f.challenges.Pending("alice"))
	pending := f.challenges.Pending("bob")
	require.Len(t, pending, 1, "rematch survives")
	assert.Equal(t, "alice", pending[0].From)
}

// reconnecting reports nobody connected for the first few lookups, then
// reports everyone connected.
type reconnecting struct {
	mu      sync.Mutex
	lookups int
	after   int
}

func (c *reconnecting) Connected(string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	return c.lookups > c.after
}

func TestSweep_RechecksInsideSessionBeforeRemoving(t *testing.T) {
	f := newFixture(t)
	f.create(t, engine.NewState("g1", "alice", "bob"))

	// The sweep's own checks see nobody (two lookups per check, two checks);
	// by the time the session re-checks, bob is back.
	f.r.conns = &reconnecting{after: 4}

	f.clock.Advance(time.Hour)
	rep := f.sweep(t)
	assert.Empty(t, rep.Abandoned)
	assert.Empty(t, f.archive.matches)

	_, err := f.sessions.Get(context.Background(), "g1")
	assert.NoError(t, err, "session is still live")
}
