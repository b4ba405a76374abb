package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/pkg/types"
)

// recorder is a Notifier that queues pushes per user.
type recorder struct {
	mu      sync.Mutex
	outs    map[string]chan types.Event
	offline map[string]bool
}

func newRecorder(users ...string) *recorder {
	r := &recorder{outs: map[string]chan types.Event{}, offline: map[string]bool{}}
	for _, u := range users {
		r.outs[u] = make(chan types.Event, 16)
	}
	return r
}

func (r *recorder) Push(user string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline[user] {
		return errors.New("not connected")
	}
	r.outs[user] <- v.(types.Event)
	return nil
}

func (r *recorder) setOffline(user string, off bool) {
	r.mu.Lock()
	r.offline[user] = off
	r.mu.Unlock()
}

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, r *recorder, user string, within time.Duration) types.SessionState {
	t.Helper()
	select {
	case ev := <-r.outs[user]:
		require.Equal(t, types.EvtSessionState, ev.Type)
		require.NotNil(t, ev.State)
		return *ev.State
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot for %s", user)
		return types.SessionState{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, r *recorder, user string, within time.Duration) {
	t.Helper()
	select {
	case ev := <-r.outs[user]:
		t.Fatalf("expected no snapshot for %s within %v, but got: %+v", user, within, ev)
	case <-time.After(within):
		// good: no snapshot
	}
}

func newTestSession(t *testing.T, n Notifier) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, engine.NewState("g1", "alice", "bob"), Deps{
		Notifier: n,
		Picker:   func(int) int { return 0 },
	})
}

func do(t *testing.T, s *Session, cmd engine.Command) View {
	t.Helper()
	v, err := s.Do(context.Background(), cmd)
	require.NoError(t, err)
	return v
}

func TestSession_JoinBroadcastsToJoinedPlayersAndVersionIncrements(t *testing.T) {
	rec := newRecorder("alice", "bob")
	s := newTestSession(t, rec)

	v := do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})
	assert.Equal(t, 1, v.Version)

	first := recvSnapshot(t, rec, "alice", 100*time.Millisecond)
	assert.Equal(t, 1, first.Version)
	assert.Nil(t, first.Turn)
	recvNoSnapshot(t, rec, "bob", 50*time.Millisecond)

	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})
	for _, user := range []string{"alice", "bob"} {
		snap := recvSnapshot(t, rec, user, 100*time.Millisecond)
		assert.Equal(t, 2, snap.Version)
		require.NotNil(t, snap.Turn)
		assert.Equal(t, "alice", *snap.Turn)
	}
}

func TestSession_RejectedCommandLeavesStateAndSendsNothing(t *testing.T) {
	rec := newRecorder("alice", "bob")
	s := newTestSession(t, rec)
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})
	recvSnapshot(t, rec, "alice", 100*time.Millisecond)
	recvSnapshot(t, rec, "alice", 100*time.Millisecond)

	v, err := s.Do(context.Background(), engine.Command{Type: engine.CmdChoose, Player: "bob", Choice: engine.ChoiceRock})
	assert.ErrorIs(t, err, engine.ErrNotYourTurn)
	assert.Equal(t, 2, v.Version)

	recvNoSnapshot(t, rec, "alice", 50*time.Millisecond)
}

func TestSession_ResumePushesOnlyToCaller(t *testing.T) {
	rec := newRecorder("alice", "bob")
	s := newTestSession(t, rec)
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})
	for i := 0; i < 2; i++ {
		recvSnapshot(t, rec, "alice", 100*time.Millisecond)
	}
	recvSnapshot(t, rec, "bob", 100*time.Millisecond)

	v := do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})
	assert.Equal(t, 2, v.Version, "rejoin is not a mutation")

	snap := recvSnapshot(t, rec, "bob", 100*time.Millisecond)
	assert.Equal(t, 2, snap.Version)
	recvNoSnapshot(t, rec, "alice", 50*time.Millisecond)
}

func TestSession_FailedDeliveryDoesNotBlockOthers(t *testing.T) {
	rec := newRecorder("alice", "bob")
	s := newTestSession(t, rec)
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})
	recvSnapshot(t, rec, "alice", 100*time.Millisecond)

	rec.setOffline("alice", true)
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})

	snap := recvSnapshot(t, rec, "bob", 100*time.Millisecond)
	assert.Equal(t, 2, snap.Version)
}

func TestSession_ConcurrentSubmissionsAreSerialised(t *testing.T) {
	s := newTestSession(t, nil)
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})
	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "bob"})

	// Both race to submit while it is alice's turn: exactly one may win.
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		player := "alice"
		if i%2 == 1 {
			player = "bob"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Do(context.Background(), engine.Command{Type: engine.CmdChoose, Player: player, Choice: engine.ChoiceRock})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
		}
	}
	// alice then bob may each get one in, after which a tie rerolls to alice
	// who may go again; every acceptance must be a legal transition.
	assert.GreaterOrEqual(t, accepted, 1)

	v, err := s.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2+accepted, v.Version)
	assert.True(t, v.State.IsPlayer(v.State.Turn))
}

func TestSession_TouchAdvancesLastActive(t *testing.T) {
	s := newTestSession(t, nil)
	v, err := s.View(context.Background())
	require.NoError(t, err)

	later := v.LastActive.Add(time.Hour)
	require.NoError(t, s.Touch(context.Background(), later))
	require.NoError(t, s.Touch(context.Background(), later.Add(-time.Minute)))

	v, err = s.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, later, v.LastActive)
}

func TestSession_Shutdown_RejectsFurtherCalls(t *testing.T) {
	s := newTestSession(t, nil)
	s.Inbox() <- Shutdown{}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not stop")
	}

	_, err := s.Do(context.Background(), engine.Command{Type: engine.CmdJoin, Player: "alice"})
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestSnapshotHidesPendingChoices(t *testing.T) {
	st := engine.NewState("g1", "alice", "bob")
	st.Pending["alice"] = engine.ChoiceRock

	snap := Snapshot(st, 3)
	assert.Equal(t, []string{"alice"}, snap.Pending)
	assert.Equal(t, 3, snap.Version)
	assert.Equal(t, "rps", snap.Phase)
	assert.Nil(t, snap.Turn)
	assert.Nil(t, snap.RoundWinner)
	assert.Equal(t, types.Island{Parts: 10}, snap.Islands["bob"])
}

func TestSession_ExpireChecksConditionOnLoop(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	v, expired, err := s.Expire(ctx, func(v View) bool { return v.Version > 0 })
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, 0, v.Version)

	do(t, s, engine.Command{Type: engine.CmdJoin, Player: "alice"})

	v, expired, err = s.Expire(ctx, func(v View) bool { return v.Version > 0 })
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, []string{"alice"}, v.State.Joined)
	assert.False(t, v.Created.IsZero())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("expired session still running")
	}
	_, err = s.Do(ctx, engine.Command{Type: engine.CmdJoin, Player: "bob"})
	assert.True(t, IsNotFound(err))
}
