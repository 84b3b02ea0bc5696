package explorer

import (
	"bytes"
	"path"
	"strings"
	"testing"

	"github.com/logrusorgru/aurora"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
	"github.com/zeu5/studybreak-rl/util"
)

// writes a trained policy and its traces, returns the two files
func record(t *testing.T, episodes int) (string, string) {
	t.Helper()
	dir := t.TempDir()
	policy := policies.NewQLearningPolicyWithSeed(0.1, 0.9, 0.2, 5)
	agent := types.NewAgent(&types.AgentConfig{
		Episodes:    episodes,
		Policy:      policy,
		Environment: study.NewEnvironment(),
	})
	tracesFile := path.Join(dir, "traces.jsonl")
	for e := 0; e < episodes; e++ {
		if err := util.AppendJSONLine(tracesFile, agent.RunEpisode(e)); err != nil {
			t.Fatal(err)
		}
	}
	policyFile := path.Join(dir, "policy.json")
	if err := policy.Record(policyFile); err != nil {
		t.Fatal(err)
	}
	return policyFile, tracesFile
}

func TestNewExplorer(t *testing.T) {
	policyFile, tracesFile := record(t, 5)
	e, err := NewExplorer(policyFile, tracesFile, false)
	if err != nil {
		t.Fatalf("NewExplorer() error = %v", err)
	}
	if len(e.Traces) != 5 {
		t.Fatalf("got %d traces, want 5", len(e.Traces))
	}
	start := study.NewEnvironment().Reset()
	if e.Visits[start] < 5 {
		t.Errorf("initial state visited %d times, want at least 5", e.Visits[start])
	}
	if got := e.getInitialStates(); !strings.Contains(got, start.Hash()+": 5") {
		t.Errorf("initial states = %q", got)
	}
}

func TestNewExplorerMissingFiles(t *testing.T) {
	policyFile, tracesFile := record(t, 1)
	if _, err := NewExplorer(path.Join(t.TempDir(), "missing.json"), tracesFile, false); err == nil {
		t.Error("expected an error for a missing policy")
	}
	if _, err := NewExplorer(policyFile, path.Join(t.TempDir(), "missing.jsonl"), false); err == nil {
		t.Error("expected an error for missing traces")
	}
}

func TestReadSingleTrace(t *testing.T) {
	trace := types.NewTrace()
	s := study.NewEnvironment().Reset()
	trace.Append(0, s, types.Continue, 2.1, s)
	file := path.Join(t.TempDir(), "trace.json")
	if err := trace.Record(file); err != nil {
		t.Fatal(err)
	}
	traces, err := readTraces(file)
	if err != nil {
		t.Fatalf("readTraces() error = %v", err)
	}
	if len(traces) != 1 || traces[0].Len() != 1 {
		t.Fatalf("got %d traces", len(traces))
	}
}

func TestGetQValues(t *testing.T) {
	e := &Explorer{QTable: policies.NewQTable(), Visits: map[types.State]int{}, au: auroraPlain()}
	s := types.State{TimeBucket: 1, FatigueBucket: 2, FatiguePref: 1}
	e.QTable.Set(s, types.LongBreak, 1.5)

	got := e.getQValues(s.Hash())
	if !strings.Contains(got, "Long Break: 1.500000 (best)") {
		t.Errorf("best action not marked in %q", got)
	}
	if strings.Count(got, "(best)") != 1 {
		t.Errorf("expected a single best action in %q", got)
	}
	if got := e.getQValues("(7, 0, 0, 0)"); got != "No such state in the q table\n" {
		t.Errorf("got %q for an out of bounds state", got)
	}
	if got := e.getFullState("nonsense"); got != "No such state\n" {
		t.Errorf("got %q for an invalid key", got)
	}
}

func TestDescribeStep(t *testing.T) {
	trace := types.NewTrace()
	s := types.State{FatiguePref: 2, BreakBias: 1}
	trace.Append(0, s, types.ShortBreak, -0.1, s)
	trace.Done = true

	out, ok := describeStep(trace, 0)
	if !ok {
		t.Fatal("expected the step to exist")
	}
	for _, want := range []string{"Short Break", "Fatigue sensitivity: high", "Break bias: short", "Reward: -0.10", "Session finished"} {
		if !strings.Contains(out, want) {
			t.Errorf("step description missing %q:\n%s", want, out)
		}
	}
	if _, ok := describeStep(trace, 1); ok {
		t.Error("expected no second step")
	}
}

func TestInteract(t *testing.T) {
	policyFile, tracesFile := record(t, 2)
	e, err := NewExplorer(policyFile, tracesFile, false)
	if err != nil {
		t.Fatal(err)
	}
	start := study.NewEnvironment().Reset()
	in := strings.NewReader(strings.Join([]string{
		"1",
		"2", start.Hash(),
		"3", start.Hash(),
		"4", "1", "s", "p", "d", "l", "q",
		"9",
		"6",
	}, "\n") + "\n")
	out := &bytes.Buffer{}
	e.Interact(in, out)

	got := out.String()
	for _, want := range []string{"Initial States are:", "Q values are:", "Visits:", "For step 1/", "Wrong choice!", "Quitting! Thank you"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestInteractStopsAtEOF(t *testing.T) {
	e := &Explorer{QTable: policies.NewQTable(), Visits: map[types.State]int{}, au: auroraPlain()}
	out := &bytes.Buffer{}
	e.Interact(strings.NewReader("1\n"), out)
	if !strings.Contains(out.String(), "Initial States are:") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func auroraPlain() aurora.Aurora {
	return aurora.NewAurora(false)
}
