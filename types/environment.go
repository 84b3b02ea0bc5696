package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Environment models one study session as a discrete time process
type Environment interface {
	// Reset called at the start of each episode
	Reset() State
	// Step applies the action and returns the next state, the reward
	// and whether the episode is over
	Step(Action) (State, float64, bool)
}

// Number of values each state component can take
const Buckets = 3

// State of a study session as observed by the policies.
// Every component lies in [0, Buckets)
type State struct {
	TimeBucket    int
	FatigueBucket int
	FatiguePref   int
	BreakBias     int
}

// Hash of the state
// Deterministic, used as key when recording policies and traces
func (s State) Hash() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", s.TimeBucket, s.FatigueBucket, s.FatiguePref, s.BreakBias)
}

func (s State) String() string {
	return s.Hash()
}

// Valid checks that all the components are within bounds
func (s State) Valid() bool {
	for _, c := range s.components() {
		if c < 0 || c >= Buckets {
			return false
		}
	}
	return true
}

func (s State) components() [4]int {
	return [4]int{s.TimeBucket, s.FatigueBucket, s.FatiguePref, s.BreakBias}
}

// MarshalJSON encodes the state as a list of 4 integers
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.components())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var c [4]int
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	next := State{TimeBucket: c[0], FatigueBucket: c[1], FatiguePref: c[2], BreakBias: c[3]}
	if !next.Valid() {
		return fmt.Errorf("state out of bounds: %v", c)
	}
	*s = next
	return nil
}

// ParseStateHash is the inverse of State.Hash
func ParseStateHash(hash string) (State, error) {
	s := State{}
	_, err := fmt.Sscanf(hash, "(%d, %d, %d, %d)", &s.TimeBucket, &s.FatigueBucket, &s.FatiguePref, &s.BreakBias)
	if err != nil {
		return State{}, fmt.Errorf("invalid state key %q: %w", hash, err)
	}
	if !s.Valid() {
		return State{}, fmt.Errorf("invalid state key %q: out of bounds", hash)
	}
	return s, nil
}

// AllStates enumerates the full state space in index order
func AllStates() []State {
	states := make([]State, 0, Buckets*Buckets*Buckets*Buckets)
	for t := 0; t < Buckets; t++ {
		for f := 0; f < Buckets; f++ {
			for p := 0; p < Buckets; p++ {
				for b := 0; b < Buckets; b++ {
					states = append(states, State{t, f, p, b})
				}
			}
		}
	}
	return states
}

// Action that the user (or a policy) takes in a study session.
// The identifiers are a fixed contract shared with the API clients
type Action int

const (
	Continue Action = iota
	ShortBreak
	LongBreak
)

// NumActions is the size of the action set
const NumActions = 3

var AllActions = []Action{Continue, ShortBreak, LongBreak}

// ActionInfo is the user facing metadata of an action
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// ParseAction validates a raw action identifier
func ParseAction(i int) (Action, bool) {
	a := Action(i)
	return a, a.Valid()
}

func (a Action) Valid() bool {
	return a >= Continue && a <= LongBreak
}

func (a Action) Hash() string {
	return strconv.Itoa(int(a))
}

func (a Action) String() string {
	switch a {
	case Continue:
		return "Continue"
	case ShortBreak:
		return "ShortBreak"
	case LongBreak:
		return "LongBreak"
	}
	return "Action(" + strconv.Itoa(int(a)) + ")"
}

// Info returns the metadata of the action, the zero value for invalid actions
func (a Action) Info() ActionInfo {
	switch a {
	case Continue:
		return ActionInfo{Name: "Continue Studying", Description: "Keep studying for 10 more minutes", Icon: "📚"}
	case ShortBreak:
		return ActionInfo{Name: "Short Break", Description: "Take a 5-minute break", Icon: "☕"}
	case LongBreak:
		return ActionInfo{Name: "Long Break", Description: "Take a 15-minute break", Icon: "🛏️"}
	}
	return ActionInfo{}
}
