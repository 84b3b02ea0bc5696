package policies

import "github.com/zeu5/studybreak-rl/types"

// FatigueThresholdPolicy is a fixed rule used as a baseline:
// long break when very tired, short break when tired after the first half hour,
// keep studying otherwise
type FatigueThresholdPolicy struct{}

var _ types.Policy = FatigueThresholdPolicy{}

func NewFatigueThresholdPolicy() FatigueThresholdPolicy {
	return FatigueThresholdPolicy{}
}

func (FatigueThresholdPolicy) NextAction(state types.State) types.Action {
	switch {
	case state.FatigueBucket == 2:
		return types.LongBreak
	case state.FatigueBucket == 1 && state.TimeBucket > 0:
		return types.ShortBreak
	}
	return types.Continue
}

func (FatigueThresholdPolicy) Update(_ types.State, _ types.Action, _ float64, _ types.State) {}

func (FatigueThresholdPolicy) UpdateIteration(_ int, _ *types.Trace) {}

func (FatigueThresholdPolicy) Reset() {}
