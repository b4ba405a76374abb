package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, session.Deps{})
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *session.Session, 1)

	state := engine.NewState("ZED123", "alice", "bob")
	h.Inbox() <- CreateSession{State: state, Reply: reply}
	s1 := <-reply

	h.Inbox() <- GetSession{ID: "ZED123", Reply: reply}
	s2 := <-reply

	if s1 == nil || s2 == nil || s1 != s2 {
		t.Fatalf("expected same session pointer")
	}
}

func TestHub_CreateIsIdempotentPerID(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	s1, err := h.Create(ctx, engine.NewState("g1", "alice", "bob"))
	require.NoError(t, err)
	s2, err := h.Create(ctx, engine.NewState("g1", "carol", "dave"))
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	v, err := s2.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"alice", "bob"}, v.State.Players)
}

func TestHub_GetUnknown(t *testing.T) {
	h := newTestHub(t)
	_, err := h.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestHub_RemoveStopsSession(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	s, err := h.Create(ctx, engine.NewState("g1", "alice", "bob"))
	require.NoError(t, err)

	removed, err := h.Remove(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, removed)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed session still running")
	}

	_, err = h.Get(ctx, "g1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	removed, err = h.Remove(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestHub_ListIsSortedByID(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	for _, id := range []string{"b", "c", "a"} {
		_, err := h.Create(ctx, engine.NewState(id, "alice", "bob"))
		require.NoError(t, err)
	}

	list, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "c", list[2].ID())
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	s, err := h.Create(ctx, engine.NewState("g1", "alice", "bob"))
	require.NoError(t, err)

	require.NoError(t, h.Shutdown(ctx))
	<-s.Done()

	_, err = h.Get(ctx, "g1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, h.Shutdown(ctx), "second shutdown is a no-op")
}
