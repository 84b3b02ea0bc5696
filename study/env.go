package study

import (
	"fmt"

	"github.com/zeu5/studybreak-rl/types"
)

const (
	// minutes gained by one Continue step
	StudyIncrement = 10
	// the session is over once this many minutes were studied
	SessionLength = 120

	shortBreakFatigue = 2
	longBreakFatigue  = 4

	studyReward       = 1.5
	progressBonus     = 0.6
	fatigueThreshold  = 3
	fatiguePenaltyPer = 0.5

	shortBreakBase     = 0.5
	shortBreakRecovery = 1.0
	shortBreakWasted   = 0.5
	shortRecoveryAt    = 4

	longBreakBase   = -0.5
	longBreakRelief = 1.5
	longBreakWasted = 1.2
	longReliefAt    = 6

	studyBiasBonus   = 0.5
	breakBiasBonus   = 0.3
	studyBiasPenalty = 0.4
)

func timeBucket(minutes int) int {
	switch {
	case minutes < 30:
		return 0
	case minutes < 60:
		return 1
	}
	return 2
}

func fatigueBucket(fatigue int) int {
	switch {
	case fatigue < 3:
		return 0
	case fatigue < 6:
		return 1
	}
	return 2
}

// Environment is a single study session.
// Study time and fatigue are cleared on Reset, the preferences are kept
type Environment struct {
	studyTime   int
	fatigue     int
	preferences Preferences
}

var _ types.Environment = &Environment{}

// NewEnvironment creates a session with medium sensitivity and study bias
func NewEnvironment() *Environment {
	return &Environment{
		preferences: DefaultPreferences(),
	}
}

// NewEnvironmentWithPreferences creates a fresh session for the given preferences
func NewEnvironmentWithPreferences(p Preferences) *Environment {
	e := NewEnvironment()
	if p.FatigueSensitivity.Valid() {
		e.preferences.FatigueSensitivity = p.FatigueSensitivity
	}
	if p.BreakBias.Valid() {
		e.preferences.BreakBias = p.BreakBias
	}
	return e
}

// SetPreferences updates the preferences from their names.
// Unknown names leave the corresponding preference unchanged
func (e *Environment) SetPreferences(fatigueSensitivity, breakBias string) {
	if f, ok := ParseFatigueSensitivity(fatigueSensitivity); ok {
		e.preferences.FatigueSensitivity = f
	}
	if b, ok := ParseBreakBias(breakBias); ok {
		e.preferences.BreakBias = b
	}
}

func (e *Environment) Preferences() Preferences {
	return e.preferences
}

func (e *Environment) StudyTime() int {
	return e.studyTime
}

func (e *Environment) Fatigue() int {
	return e.fatigue
}

// Done is true once the session length has been reached
func (e *Environment) Done() bool {
	return e.studyTime >= SessionLength
}

// State discretizes the session
func (e *Environment) State() types.State {
	return types.State{
		TimeBucket:    timeBucket(e.studyTime),
		FatigueBucket: fatigueBucket(e.fatigue),
		FatiguePref:   int(e.preferences.FatigueSensitivity),
		BreakBias:     int(e.preferences.BreakBias),
	}
}

func (e *Environment) Reset() types.State {
	e.studyTime = 0
	e.fatigue = 0
	return e.State()
}

// Step applies the action to the session and returns the shaped reward.
// Panics if the action is not one of Continue, ShortBreak and LongBreak
func (e *Environment) Step(a types.Action) (types.State, float64, bool) {
	var reward float64
	bias := e.preferences.BreakBias

	switch a {
	case types.Continue:
		penalty := -fatiguePenaltyPer * e.preferences.FatigueSensitivity.Weight() * float64(max(e.fatigue-fatigueThreshold, 0))
		e.studyTime += StudyIncrement
		e.fatigue += 1
		reward = studyReward + progressBonus + penalty
		if bias == StudyBias {
			reward += studyBiasBonus
		}
	case types.ShortBreak:
		e.fatigue = max(0, e.fatigue-shortBreakFatigue)
		reward = shortBreakBase
		if e.fatigue >= shortRecoveryAt {
			reward += shortBreakRecovery
		} else {
			reward -= shortBreakWasted
		}
		switch bias {
		case ShortBias:
			reward += breakBiasBonus
		case StudyBias:
			reward -= studyBiasPenalty
		}
	case types.LongBreak:
		e.fatigue = max(0, e.fatigue-longBreakFatigue)
		reward = longBreakBase
		if e.fatigue >= longReliefAt {
			reward += longBreakRelief
		} else {
			reward -= longBreakWasted
		}
		switch bias {
		case LongBias:
			reward += breakBiasBonus
		case StudyBias:
			reward -= studyBiasPenalty
		}
	default:
		panic(fmt.Sprintf("study: invalid action %d", int(a)))
	}
	return e.State(), reward, e.Done()
}

// Copy returns a fresh session with the same preferences
func (e *Environment) Copy() *Environment {
	return NewEnvironmentWithPreferences(e.preferences)
}
