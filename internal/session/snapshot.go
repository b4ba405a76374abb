package session

import (
	"slices"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
	"github.com/DoyleJ11/island-duel-backend/pkg/types"
)

// Snapshot converts engine state into its wire form.
func Snapshot(st engine.State, version int) types.SessionState {
	snap := types.SessionState{
		ID:       st.ID,
		Version:  version,
		Players:  []string{st.Players[0], st.Players[1]},
		Joined:   slices.Clone(st.Joined),
		Phase:    string(st.Phase),
		Pending:  []string{},
		Scores:   make(map[string]int, len(st.Scores)),
		Islands:  make(map[string]types.Island, len(st.Islands)),
		Moves:    slices.Clone(st.Moves),
		Terminal: st.Terminal,
		Winner:   st.Winner,
	}
	if snap.Joined == nil {
		snap.Joined = []string{}
	}
	if snap.Moves == nil {
		snap.Moves = []string{}
	}
	if st.Turn != "" {
		turn := st.Turn
		snap.Turn = &turn
	}
	if st.RoundWinner != "" {
		rw := st.RoundWinner
		snap.RoundWinner = &rw
	}
	for _, p := range st.Players {
		if _, ok := st.Pending[p]; ok {
			snap.Pending = append(snap.Pending, p)
		}
	}
	for user, score := range st.Scores {
		snap.Scores[user] = score
	}
	for user, is := range st.Islands {
		snap.Islands[user] = types.Island{Parts: is.Parts, Shields: is.Shields}
	}
	return snap
}
