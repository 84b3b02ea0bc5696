package explorer

import (
	"fmt"

	"github.com/zeu5/studybreak-rl/types"
)

var (
	timeBuckets    = [...]string{"under 30 minutes", "30 to 59 minutes", "60 minutes or more"}
	fatigueBuckets = [...]string{"fresh (0-2)", "tired (3-5)", "exhausted (6+)"}
	sensitivities  = [...]string{"low", "medium", "high"}
	biases         = [...]string{"study", "short", "long"}
)

func bucketName(names [types.Buckets]string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("unknown(%d)", i)
	}
	return names[i]
}

// describeState spells out the buckets of the state
func describeState(s types.State) string {
	return fmt.Sprintf("%s\n  Studied: %s\n  Fatigue: %s\n  Fatigue sensitivity: %s\n  Break bias: %s",
		s.Hash(),
		bucketName(timeBuckets, s.TimeBucket),
		bucketName(fatigueBuckets, s.FatigueBucket),
		bucketName(sensitivities, s.FatiguePref),
		bucketName(biases, s.BreakBias),
	)
}

func describeAction(a types.Action) string {
	if !a.Valid() {
		return fmt.Sprintf("unknown action %d", int(a))
	}
	info := a.Info()
	return fmt.Sprintf("%s %s (%s)", info.Icon, info.Name, info.Description)
}

// describeStep renders one step of the trace
func describeStep(t *types.Trace, step int) (string, bool) {
	s, a, r, ns, ok := t.Get(step)
	if !ok {
		return "", false
	}
	out := fmt.Sprintf("For step %d/%d\nState: %s\nAction: %s\nReward: %.2f\nNextState: %s\n",
		step+1, t.Len(), describeState(s), describeAction(a), r, describeState(ns))
	if step == t.Len()-1 {
		if t.Done {
			out += "Session finished\n"
		} else {
			out += "Episode cut by the horizon\n"
		}
	}
	return out, true
}
