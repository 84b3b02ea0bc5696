package study

import "fmt"

// FatigueSensitivity is how strongly the user feels fatigue
type FatigueSensitivity int

const (
	LowSensitivity FatigueSensitivity = iota
	MediumSensitivity
	HighSensitivity
)

var fatigueWeights = [...]float64{0.6, 1.0, 1.5}

var sensitivityNames = [...]string{"low", "medium", "high"}

// ParseFatigueSensitivity accepts one of low, medium and high
func ParseFatigueSensitivity(s string) (FatigueSensitivity, bool) {
	for i, name := range sensitivityNames {
		if name == s {
			return FatigueSensitivity(i), true
		}
	}
	return 0, false
}

func (f FatigueSensitivity) Valid() bool {
	return f >= LowSensitivity && f <= HighSensitivity
}

func (f FatigueSensitivity) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FatigueSensitivity(%d)", int(f))
	}
	return sensitivityNames[f]
}

// Weight scales the fatigue penalty of continuing to study
func (f FatigueSensitivity) Weight() float64 {
	if !f.Valid() {
		return fatigueWeights[MediumSensitivity]
	}
	return fatigueWeights[f]
}

// BreakBias is the kind of action the user leans towards
type BreakBias int

const (
	StudyBias BreakBias = iota
	ShortBias
	LongBias
)

var biasNames = [...]string{"study", "short", "long"}

// ParseBreakBias accepts one of study, short and long
func ParseBreakBias(s string) (BreakBias, bool) {
	for i, name := range biasNames {
		if name == s {
			return BreakBias(i), true
		}
	}
	return 0, false
}

func (b BreakBias) Valid() bool {
	return b >= StudyBias && b <= LongBias
}

func (b BreakBias) String() string {
	if !b.Valid() {
		return fmt.Sprintf("BreakBias(%d)", int(b))
	}
	return biasNames[b]
}

// Preferences of the user, encoded into the last two state components
type Preferences struct {
	FatigueSensitivity FatigueSensitivity
	BreakBias          BreakBias
}

func DefaultPreferences() Preferences {
	return Preferences{
		FatigueSensitivity: MediumSensitivity,
		BreakBias:          StudyBias,
	}
}
