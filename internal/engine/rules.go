package engine

import "math/rand"

const (
	StartingParts = 10
	MaxShields    = 3
	RoundPoints   = 10
)

type Choice string

const (
	ChoiceRock    Choice = "rock"
	ChoicePaper   Choice = "paper"
	ChoiceOfficer Choice = "officer"
)

// beats maps each choice to the one it defeats.
var beats = map[Choice]Choice{
	ChoiceRock:    ChoiceOfficer,
	ChoiceOfficer: ChoicePaper,
	ChoicePaper:   ChoiceRock,
}

func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

func (c Choice) Beats(other Choice) bool { return beats[c] == other }

type Action string

const (
	ActionMortar Action = "mortar" // knocks one shield off the opponent
	ActionShield Action = "shield" // raises one own shield, capped at MaxShields
	ActionSlicer Action = "slicer" // removes an island part when the opponent has no shields
)

func (a Action) Valid() bool {
	switch a {
	case ActionMortar, ActionShield, ActionSlicer:
		return true
	}
	return false
}

// DefaultPicker is safe for concurrent use.
func DefaultPicker(n int) int { return rand.Intn(n) }
