package policies

import (
	"fmt"
	"time"

	"github.com/zeu5/studybreak-rl/types"
	"golang.org/x/exp/rand"
)

const (
	DefaultAlpha   = 0.1
	DefaultGamma   = 0.9
	DefaultEpsilon = 0.2
)

// QLearningPolicy is an epsilon-greedy tabular Q-learning policy
type QLearningPolicy struct {
	qTable  *QTable
	alpha   float64
	gamma   float64
	epsilon float64
	rand    *rand.Rand
}

var _ types.MergeablePolicy = &QLearningPolicy{}

func NewQLearningPolicy(alpha, gamma, epsilon float64) *QLearningPolicy {
	return NewQLearningPolicyWithSeed(alpha, gamma, epsilon, uint64(time.Now().UnixNano()))
}

func NewQLearningPolicyWithSeed(alpha, gamma, epsilon float64, seed uint64) *QLearningPolicy {
	return &QLearningPolicy{
		qTable:  NewQTable(),
		alpha:   alpha,
		gamma:   gamma,
		epsilon: epsilon,
		rand:    rand.New(rand.NewSource(seed)),
	}
}

// DefaultQLearningPolicy uses alpha 0.1, gamma 0.9 and epsilon 0.2
func DefaultQLearningPolicy() *QLearningPolicy {
	return NewQLearningPolicy(DefaultAlpha, DefaultGamma, DefaultEpsilon)
}

// NextAction explores with probability epsilon, otherwise follows the greedy action
func (q *QLearningPolicy) NextAction(state types.State) types.Action {
	if q.rand.Float64() < q.epsilon {
		return types.AllActions[q.rand.Intn(types.NumActions)]
	}
	return q.Greedy(state)
}

// Greedy returns the first action with the highest value, without exploring
func (q *QLearningPolicy) Greedy(state types.State) types.Action {
	action, _ := q.qTable.Max(state)
	return action
}

// Update applies the one step Q-learning rule to the (state, action) entry.
// The next state value is bootstrapped even when the next state is terminal
func (q *QLearningPolicy) Update(state types.State, action types.Action, reward float64, nextState types.State) {
	_, nextVal := q.qTable.Max(nextState)
	curVal := q.qTable.Get(state, action)
	q.qTable.Set(state, action, curVal+q.alpha*(reward+q.gamma*nextVal-curVal))
}

func (q *QLearningPolicy) UpdateIteration(_ int, _ *types.Trace) {}

func (q *QLearningPolicy) Reset() {
	q.qTable = NewQTable()
}

func (q *QLearningPolicy) QTable() *QTable {
	return q.qTable
}

func (q *QLearningPolicy) Params() (alpha, gamma, epsilon float64) {
	return q.alpha, q.gamma, q.epsilon
}

func (q *QLearningPolicy) Record(path string) error {
	return q.qTable.Record(path)
}

// Clone copies the learned values, the clone explores with its own random source
func (q *QLearningPolicy) Clone() types.MergeablePolicy {
	return &QLearningPolicy{
		qTable:  q.qTable.Clone(),
		alpha:   q.alpha,
		gamma:   q.gamma,
		epsilon: q.epsilon,
		rand:    rand.New(rand.NewSource(q.rand.Uint64())),
	}
}

// Merge sets the values to the mean of the values of the other policies
func (q *QLearningPolicy) Merge(others []types.MergeablePolicy) error {
	tables := make([]*QTable, len(others))
	for i, o := range others {
		other, ok := o.(*QLearningPolicy)
		if !ok {
			return fmt.Errorf("cannot merge %T into a q-learning policy", o)
		}
		tables[i] = other.qTable
	}
	return q.qTable.Mean(tables)
}
