package conn

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
)

var ErrNotConnected = apperr.Transport("not_connected", "user has no live connection")
var ErrDropped = apperr.Transport("dropped", "connection too slow, dropped")

// Client is the server side of one live connection. Its outbox is closed
// by the registry exactly once, when the client is replaced, dropped or
// detached.
type Client struct {
	User   string
	ID     string
	send   chan []byte
	closed bool // guarded by Registry.mu
}

func NewClient(user, id string, buffer int) *Client {
	return &Client{User: user, ID: id, send: make(chan []byte, buffer)}
}

// Outbox yields encoded messages until the client is released.
func (c *Client) Outbox() <-chan []byte { return c.send }

// Registry maps a user id to at most one live connection.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{clients: make(map[string]*Client), log: log}
}

// Attach makes c the live connection for c.User. A previous connection for
// the same user is released; it reports whether that happened.
func (r *Registry) Attach(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.clients[c.User]
	if ok && prev != c {
		r.releaseLocked(prev)
	}
	r.clients[c.User] = c
	return ok && prev != c
}

// Detach clears the handle if c is still the user's live connection. It
// never touches game state.
func (r *Registry) Detach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.clients[c.User]; ok && cur == c {
		delete(r.clients, c.User)
	}
	r.releaseLocked(c)
}

func (r *Registry) Connected(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[user]
	return ok
}

// Push encodes v and queues it for user without blocking. A client whose
// buffer is full is dropped and its handle cleared, so one dead recipient
// cannot hold up delivery to anyone else.
func (r *Registry) Push(user string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[user]
	if !ok {
		return ErrNotConnected
	}
	select {
	case c.send <- payload:
		return nil
	default:
		delete(r.clients, user)
		r.releaseLocked(c)
		r.log.Warn("dropping slow connection", zap.String("user", user), zap.String("conn", c.ID))
		return ErrDropped
	}
}

// CloseAll releases every connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for user, c := range r.clients {
		r.releaseLocked(c)
		delete(r.clients, user)
	}
}

func (r *Registry) releaseLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
