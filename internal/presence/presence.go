package presence

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
)

const MaxUsernameLen = 20

var ErrInvalidUsername = apperr.Validation("invalid_username", "username must be 1-20 characters")
var ErrUsernameTaken = apperr.Conflict("username_taken", "username is already online")
var ErrUserNotFound = apperr.NotFound("user_not_found", "user not found")

// User is a copy of a registry entry. Users are never deleted.
type User struct {
	ID           string    `json:"username"`
	Online       bool      `json:"online"`
	LastActivity time.Time `json:"last_activity"`
}

type Registry struct {
	mu           sync.Mutex
	users        map[string]*User
	offlineAfter time.Duration
	rejectOnline bool
	now          func() time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// RejectOnlineDuplicates makes Register fail with ErrUsernameTaken when the
// name is currently online, instead of treating it as a reconnect.
func RejectOnlineDuplicates(reject bool) Option {
	return func(r *Registry) { r.rejectOnline = reject }
}

func NewRegistry(offlineAfter time.Duration, opts ...Option) *Registry {
	r := &Registry{
		users:        make(map[string]*User),
		offlineAfter: offlineAfter,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func ValidateUsername(id string) error {
	if n := utf8.RuneCountInString(id); n < 1 || n > MaxUsernameLen {
		return ErrInvalidUsername
	}
	return nil
}

// Register creates the user or reactivates an existing one. reconnected is
// true when the name was already known.
func (r *Registry) Register(id string) (reconnected bool, err error) {
	if err := ValidateUsername(id); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	u, ok := r.users[id]
	if !ok {
		r.users[id] = &User{ID: id, Online: true, LastActivity: now}
		return false, nil
	}
	if r.rejectOnline && r.onlineLocked(u, now) {
		return false, ErrUsernameTaken
	}
	u.Online = true
	u.LastActivity = now
	return true, nil
}

// Heartbeat records activity and flips the user back online.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Online = true
	u.LastActivity = r.now()
	return nil
}

func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok
}

func (r *Registry) Get(id string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, false
	}
	r.expireLocked(u, r.now())
	return *u, true
}

// ListOnline applies the staleness rule before answering, so the result does
// not depend on when the last sweep ran.
func (r *Registry) ListOnline() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := []string{}
	for id, u := range r.users {
		r.expireLocked(u, now)
		if u.Online {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// All returns every known user sorted by name.
func (r *Registry) All() []User {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		r.expireLocked(u, now)
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b User) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Sweep flags stale users offline and returns the ones it flipped.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var flipped []string
	for id, u := range r.users {
		if r.expireLocked(u, now) {
			flipped = append(flipped, id)
		}
	}
	slices.Sort(flipped)
	return flipped
}

func (r *Registry) onlineLocked(u *User, now time.Time) bool {
	return u.Online && now.Sub(u.LastActivity) <= r.offlineAfter
}

func (r *Registry) expireLocked(u *User, now time.Time) bool {
	if u.Online && now.Sub(u.LastActivity) > r.offlineAfter {
		u.Online = false
		return true
	}
	return false
}
