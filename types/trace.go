package types

import (
	"encoding/json"
	"errors"

	"github.com/zeu5/studybreak-rl/util"
)

var errMismatchedTrace = errors.New("number of states, actions, rewards and next states mismatched")

// Trace of an episode as (state, action, reward, nextState) steps
type Trace struct {
	states     []State
	actions    []Action
	rewards    []float64
	nextStates []State

	// Done is set when the episode reached the terminal condition
	// (as opposed to being cut by the horizon)
	Done bool
}

func NewTrace() *Trace {
	return &Trace{
		states:     make([]State, 0),
		actions:    make([]Action, 0),
		rewards:    make([]float64, 0),
		nextStates: make([]State, 0),
	}
}

func (t *Trace) Append(step int, state State, action Action, reward float64, nextState State) {
	t.states = append(t.states, state)
	t.actions = append(t.actions, action)
	t.rewards = append(t.rewards, reward)
	t.nextStates = append(t.nextStates, nextState)
}

func (t *Trace) Len() int {
	return len(t.states)
}

func (t *Trace) Get(i int) (State, Action, float64, State, bool) {
	if i < 0 || i >= len(t.states) {
		return State{}, 0, 0, State{}, false
	}
	return t.states[i], t.actions[i], t.rewards[i], t.nextStates[i], true
}

func (t *Trace) Last() (State, Action, float64, State, bool) {
	return t.Get(len(t.states) - 1)
}

func (t *Trace) Slice(from, to int) *Trace {
	slicedTrace := NewTrace()
	for i := from; i < to && i < len(t.states); i++ {
		slicedTrace.Append(i-from, t.states[i], t.actions[i], t.rewards[i], t.nextStates[i])
	}
	return slicedTrace
}

// TotalReward is the undiscounted return of the episode
func (t *Trace) TotalReward() float64 {
	total := 0.0
	for _, r := range t.rewards {
		total += r
	}
	return total
}

// ActionCounts returns how many times each action was taken
func (t *Trace) ActionCounts() [NumActions]int {
	var counts [NumActions]int
	for _, a := range t.actions {
		if a.Valid() {
			counts[a] += 1
		}
	}
	return counts
}

type traceJSON struct {
	States     []State   `json:"states"`
	Actions    []Action  `json:"actions"`
	Rewards    []float64 `json:"rewards"`
	NextStates []State   `json:"next_states"`
	Done       bool      `json:"done"`
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(traceJSON{
		States:     t.states,
		Actions:    t.actions,
		Rewards:    t.rewards,
		NextStates: t.nextStates,
		Done:       t.Done,
	})
}

func (t *Trace) UnmarshalJSON(data []byte) error {
	tj := traceJSON{}
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	if len(tj.States) != len(tj.Actions) || len(tj.Actions) != len(tj.Rewards) || len(tj.Rewards) != len(tj.NextStates) {
		return errMismatchedTrace
	}
	t.states = tj.States
	t.actions = tj.Actions
	t.rewards = tj.Rewards
	t.nextStates = tj.NextStates
	t.Done = tj.Done
	return nil
}

// Record writes the trace as json to the file
func (t *Trace) Record(p string) error {
	return util.WriteJSON(p, t)
}
