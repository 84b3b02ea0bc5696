package types

import (
	"time"

	"golang.org/x/exp/rand"
)

type Policy interface {
	// NextAction picks the action to take from the state
	NextAction(State) Action
	// Update with a single transition (state, action, reward, nextState)
	Update(State, Action, float64, State)
	// UpdateIteration is called at the end of each episode with its trace
	UpdateIteration(int, *Trace)
	// Reset forgets everything learned so far
	Reset()
}

// MergeablePolicy can be trained on copies that are merged back later
type MergeablePolicy interface {
	Policy
	// Clone returns an independent copy of the policy
	Clone() MergeablePolicy
	// Merge replaces the learned values with the combination of the others
	Merge([]MergeablePolicy) error
}

type RandomPolicy struct {
	rand *rand.Rand
}

var _ Policy = &RandomPolicy{}

func NewRandomPolicy() *RandomPolicy {
	return NewRandomPolicyWithSeed(uint64(time.Now().UnixNano()))
}

func NewRandomPolicyWithSeed(seed uint64) *RandomPolicy {
	return &RandomPolicy{
		rand: rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomPolicy) Reset() {

}

func (r *RandomPolicy) UpdateIteration(_ int, _ *Trace) {

}

func (r *RandomPolicy) NextAction(_ State) Action {
	return AllActions[r.rand.Intn(NumActions)]
}

func (r *RandomPolicy) Update(_ State, _ Action, _ float64, _ State) {}
