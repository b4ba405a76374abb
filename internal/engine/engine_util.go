package engine

import (
	"maps"
	"slices"
)

func NewState(id, a, b string) State {
	return State{
		ID:      id,
		Players: [2]string{a, b},
		Joined:  []string{},
		Phase:   PhaseRPS,
		Pending: map[string]Choice{},
		Scores:  map[string]int{a: 0, b: 0},
		Islands: map[string]Island{
			a: {Parts: StartingParts},
			b: {Parts: StartingParts},
		},
		Moves: []string{},
	}
}

// Clone returns a deep copy so that a transition can be abandoned midway.
func (s State) Clone() State {
	c := s
	c.Joined = slices.Clone(s.Joined)
	c.Moves = slices.Clone(s.Moves)
	c.Pending = maps.Clone(s.Pending)
	c.Scores = maps.Clone(s.Scores)
	c.Islands = maps.Clone(s.Islands)
	if c.Pending == nil {
		c.Pending = map[string]Choice{}
	}
	return c
}

func (s State) IsPlayer(user string) bool {
	return user != "" && (s.Players[0] == user || s.Players[1] == user)
}

func (s State) Opponent(user string) string {
	if s.Players[0] == user {
		return s.Players[1]
	}
	return s.Players[0]
}

func (s State) Started() bool { return len(s.Joined) == 2 }

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
