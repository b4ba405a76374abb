package challenge

import (
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
)

var ErrInvalidChallenge = apperr.NotFound("invalid_challenge", "invalid or no pending challenge")
var ErrSelfChallenge = apperr.Validation("self_challenge", "cannot challenge yourself")

type Challenge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue holds pending challenges per recipient, at most one per sender.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]Challenge
	now     func() time.Time
}

func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{pending: make(map[string][]Challenge), now: now}
}

// Add records from's challenge to to. It reports false when an identical
// challenge was already pending.
func (q *Queue) Add(from, to string) (bool, error) {
	if from == to {
		return false, ErrSelfChallenge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if slices.ContainsFunc(q.pending[to], func(c Challenge) bool { return c.From == from }) {
		return false, nil
	}
	q.pending[to] = append(q.pending[to], Challenge{From: from, To: to, CreatedAt: q.now()})
	return true, nil
}

// Pending returns a snapshot of the challenges waiting for user, oldest first.
func (q *Queue) Pending(user string) []Challenge {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := slices.Clone(q.pending[user])
	if out == nil {
		out = []Challenge{}
	}
	return out
}

// Take removes the matching challenge, failing if there is none.
func (q *Queue) Take(from, to string) (Challenge, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.pending[to]
	i := slices.IndexFunc(list, func(c Challenge) bool { return c.From == from })
	if i < 0 {
		return Challenge{}, ErrInvalidChallenge
	}
	c := list[i]
	q.setLocked(to, slices.Delete(list, i, i+1))
	return c, nil
}

// PurgeBetween drops challenges in either direction between a and b that
// were created no later than before, and returns how many were removed.
func (q *Queue) PurgeBetween(a, b string, before time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		from, to := pair[0], pair[1]
		prev := len(q.pending[to])
		q.setLocked(to, slices.DeleteFunc(q.pending[to], func(c Challenge) bool {
			return c.From == from && !c.CreatedAt.After(before)
		}))
		removed += prev - len(q.pending[to])
	}
	return removed
}

func (q *Queue) setLocked(to string, list []Challenge) {
	if len(list) == 0 {
		delete(q.pending, to)
		return
	}
	q.pending[to] = list
}
