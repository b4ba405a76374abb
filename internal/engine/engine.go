package engine

import (
	"fmt"
	"slices"

	"github.com/DoyleJ11/island-duel-backend/internal/apperr"
)

var ErrWrongPhase = apperr.State("wrong_phase", "not allowed in the current phase")
var ErrNotYourTurn = apperr.State("not_your_turn", "not your turn")
var ErrNotParticipant = apperr.State("not_participant", "user not in game")
var ErrNotStarted = apperr.State("not_started", "waiting for both players to join")
var ErrSessionTerminal = apperr.State("session_terminal", "game is already over")
var ErrInvalidChoice = apperr.Validation("invalid_choice", "invalid rps choice")
var ErrInvalidAction = apperr.Validation("invalid_action", "invalid action")
var ErrUnsupportedCommand = apperr.Validation("unsupported_command", "unsupported command")

type Phase string

const (
	PhaseRPS    Phase = "rps"
	PhaseAction Phase = "action"
)

type Island struct {
	Parts   int
	Shields int
}

// State is the authoritative state of one game session. It is only ever
// changed by Apply, which works on a copy.
type State struct {
	ID          string
	Players     [2]string
	Joined      []string
	Phase       Phase
	Turn        string
	Pending     map[string]Choice
	Scores      map[string]int
	Islands     map[string]Island
	Moves       []string
	RoundWinner string
	Terminal    bool
	Winner      string
}

type CommandType string

const (
	CmdJoin   CommandType = "Join"
	CmdChoose CommandType = "Choose"
	CmdAct    CommandType = "Act"
)

/*
	CmdJoin   -> EvtPlayerJoined -> EvtGameStarted (second distinct player only)
	CmdChoose -> EvtChoiceLocked -> EvtRoundTied | EvtRoundWon (once both players chose)
	CmdAct    -> EvtShieldsReduced | EvtMortarWasted | EvtShieldRaised | EvtShieldsAtMax
	             | EvtStrikeLanded | EvtStrikeBlocked -> EvtGameCompleted (island destroyed)
*/

type Command struct {
	Type   CommandType
	Player string
	Choice Choice
	Action Action
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtGameStarted    EventType = "GameStarted"
	EvtChoiceLocked   EventType = "ChoiceLocked"
	EvtRoundTied      EventType = "RoundTied"
	EvtRoundWon       EventType = "RoundWon"
	EvtShieldsReduced EventType = "ShieldsReduced"
	EvtMortarWasted   EventType = "MortarWasted"
	EvtShieldRaised   EventType = "ShieldRaised"
	EvtShieldsAtMax   EventType = "ShieldsAtMax"
	EvtStrikeLanded   EventType = "StrikeLanded"
	EvtStrikeBlocked  EventType = "StrikeBlocked"
	EvtGameCompleted  EventType = "GameCompleted"
)

type Event struct {
	Type   EventType
	Player string
	Target string
	Value  int
}

// Picker returns a uniformly random index in [0, n).
type Picker func(n int) int

// Apply validates cmd against s and returns the resulting state. On error
// the input state is returned untouched. A nil event slice with a nil
// error means the command was accepted but changed nothing.
func Apply(s State, cmd Command, pick Picker) ([]Event, State, error) {
	if pick == nil {
		pick = DefaultPicker
	}

	switch cmd.Type {
	case CmdJoin:
		return join(s, cmd.Player, pick)
	case CmdChoose:
		return choose(s, cmd.Player, cmd.Choice, pick)
	case CmdAct:
		return act(s, cmd.Player, cmd.Action)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func join(s State, player string, pick Picker) ([]Event, State, error) {
	if !s.IsPlayer(player) {
		return nil, s, ErrNotParticipant
	}
	// Rejoining is how a client resumes, so it is never an error.
	if s.Terminal || slices.Contains(s.Joined, player) {
		return nil, s, nil
	}

	ns := s.Clone()
	ns.Joined = append(ns.Joined, player)
	ns.logf("%s joined the game", player)
	events := []Event{{Type: EvtPlayerJoined, Player: player}}

	if len(ns.Joined) == 2 {
		ns.Phase = PhaseRPS
		ns.Turn = ns.Players[pick(2)]
		ns.logf("Both players connected! %s goes first.", ns.Turn)
		events = append(events, Event{Type: EvtGameStarted, Player: ns.Turn})
	}
	return events, ns, nil
}

func choose(s State, player string, c Choice, pick Picker) ([]Event, State, error) {
	if err := s.checkTurn(player, PhaseRPS); err != nil {
		return nil, s, err
	}
	if !c.Valid() {
		return nil, s, ErrInvalidChoice
	}

	ns := s.Clone()
	ns.Pending[player] = c
	// The choice itself stays hidden until the round resolves.
	ns.logf("%s locked in a choice", player)
	events := []Event{{Type: EvtChoiceLocked, Player: player}}

	opponent := ns.Opponent(player)
	ns.Turn = opponent
	if _, ok := ns.Pending[opponent]; !ok {
		return events, ns, nil
	}

	return append(events, resolveRound(&ns, pick)), ns, nil
}

func resolveRound(s *State, pick Picker) Event {
	a, b := s.Players[0], s.Players[1]
	ca, cb := s.Pending[a], s.Pending[b]
	s.Pending = map[string]Choice{}

	if ca == cb {
		s.Phase = PhaseRPS
		s.Turn = s.Players[pick(2)]
		s.RoundWinner = ""
		s.logf("Tie! Both chose %s. Replaying RPS.", ca)
		return Event{Type: EvtRoundTied, Player: s.Turn}
	}

	winner, loser, wc, lc := b, a, cb, ca
	if ca.Beats(cb) {
		winner, loser, wc, lc = a, b, ca, cb
	}
	s.Scores[winner] += RoundPoints
	s.Phase = PhaseAction
	s.Turn = winner
	s.RoundWinner = winner
	s.logf("%s won RPS (%s vs %s) and gained %d points!", winner, wc, lc, RoundPoints)
	return Event{Type: EvtRoundWon, Player: winner, Target: loser, Value: RoundPoints}
}

func act(s State, player string, a Action) ([]Event, State, error) {
	if err := s.checkTurn(player, PhaseAction); err != nil {
		return nil, s, err
	}
	if s.RoundWinner != player {
		return nil, s, ErrNotYourTurn
	}
	if !a.Valid() {
		return nil, s, ErrInvalidAction
	}

	ns := s.Clone()
	opponent := ns.Opponent(player)
	mine, theirs := ns.Islands[player], ns.Islands[opponent]
	var events []Event

	switch a {
	case ActionMortar:
		if theirs.Shields > 0 {
			theirs.Shields--
			ns.logf("%s used Mortar! %s's shields reduced to %d", player, opponent, theirs.Shields)
			events = append(events, Event{Type: EvtShieldsReduced, Player: player, Target: opponent, Value: theirs.Shields})
		} else {
			ns.logf("%s used Mortar! %s has no shields to reduce", player, opponent)
			events = append(events, Event{Type: EvtMortarWasted, Player: player, Target: opponent})
		}

	case ActionShield:
		if mine.Shields < MaxShields {
			mine.Shields++
			ns.logf("%s bought Shield! Shields increased to %d", player, mine.Shields)
			events = append(events, Event{Type: EvtShieldRaised, Player: player, Value: mine.Shields})
		} else {
			ns.logf("%s tried to buy Shield but already at maximum (%d)", player, MaxShields)
			events = append(events, Event{Type: EvtShieldsAtMax, Player: player, Value: mine.Shields})
		}

	case ActionSlicer:
		if theirs.Shields > 0 {
			ns.logf("%s used Slicer but %s has shields! No damage dealt.", player, opponent)
			events = append(events, Event{Type: EvtStrikeBlocked, Player: player, Target: opponent})
			break
		}
		theirs.Parts--
		if theirs.Parts < 0 {
			theirs.Parts = 0
		}
		ns.logf("%s used Slicer! %s's island parts reduced to %d", player, opponent, theirs.Parts)
		events = append(events, Event{Type: EvtStrikeLanded, Player: player, Target: opponent, Value: theirs.Parts})

		if theirs.Parts == 0 {
			ns.Terminal = true
			ns.Winner = player
			ns.logf("Game over! %s destroyed %s's island!", player, opponent)
			events = append(events, Event{Type: EvtGameCompleted, Player: player, Target: opponent})
		}
	}

	ns.Islands[player] = mine
	ns.Islands[opponent] = theirs

	if !ns.Terminal {
		ns.Phase = PhaseRPS
		ns.Turn = opponent
		ns.RoundWinner = ""
	}
	return events, ns, nil
}

// checkTurn runs the guards shared by choose and act.
func (s State) checkTurn(player string, phase Phase) error {
	if s.Terminal {
		return ErrSessionTerminal
	}
	if !s.IsPlayer(player) {
		return ErrNotParticipant
	}
	if !s.Started() {
		return ErrNotStarted
	}
	if s.Phase != phase {
		return ErrWrongPhase
	}
	if s.Turn != player {
		return ErrNotYourTurn
	}
	return nil
}

func (s *State) logf(format string, args ...any) {
	s.Moves = append(s.Moves, fmt.Sprintf(format, args...))
}
