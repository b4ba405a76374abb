package types

type Island struct {
	Parts   int `json:"parts"`
	Shields int `json:"shields"`
}

// SessionState is the full snapshot sent on every change and returned by
// the pull endpoint. Pending lists who has locked in an RPS choice; the
// choices themselves are only revealed in the move log once a round resolves.
type SessionState struct {
	ID          string            `json:"id"`
	Version     int               `json:"version"`
	Players     []string          `json:"players"`
	Joined      []string          `json:"joined"`
	Phase       string            `json:"phase"`
	Turn        *string           `json:"turn"`
	Pending     []string          `json:"pending"`
	Scores      map[string]int    `json:"scores"`
	Islands     map[string]Island `json:"islands"`
	Moves       []string          `json:"moves"`
	RoundWinner *string           `json:"round_winner"`
	Terminal    bool              `json:"terminal"`
	Winner      string            `json:"winner,omitempty"`
}
