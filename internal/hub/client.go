package hub

import (
	"context"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
)

// Create starts a session for initial, or returns the existing one with
// the same id.
func (h *Hub) Create(ctx context.Context, initial engine.State) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.send(ctx, CreateSession{State: initial, Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

// Get fails with session.ErrNotFound for unknown ids.
func (h *Hub) Get(ctx context.Context, id string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.send(ctx, GetSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	s, err := recv(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (h *Hub) Remove(ctx context.Context, id string) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.send(ctx, RemoveSession{ID: id, Reply: reply}); err != nil {
		return false, err
	}
	return recv(ctx, h, reply)
}

func (h *Hub) List(ctx context.Context) ([]*session.Session, error) {
	reply := make(chan []*session.Session, 1)
	if err := h.send(ctx, ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

// Shutdown stops every session and the hub loop.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.send(ctx, ShutdownHub{Done: done}); err != nil {
		if err == session.ErrNotFound {
			return nil // already stopped
		}
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return session.ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, session.ErrNotFound
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
