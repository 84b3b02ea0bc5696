package commands

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/zeu5/studybreak-rl/config"
	"github.com/zeu5/studybreak-rl/history"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
)

var fixedTime = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func TestTrainWritesResults(t *testing.T) {
	dir := t.TempDir()
	result, err := Train(context.Background(), TrainConfig{
		Episodes:    20,
		Seed:        7,
		Preferences: study.DefaultPreferences(),
		Alpha:       policies.DefaultAlpha,
		Gamma:       policies.DefaultGamma,
		Epsilon:     policies.DefaultEpsilon,
		SavePath:    dir,
	})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(result.Rewards) != 20 {
		t.Errorf("got %d rewards, want 20", len(result.Rewards))
	}
	// the horizon is large enough for every session to finish
	if result.Finished != 20 {
		t.Errorf("finished %d episodes, want 20", result.Finished)
	}
	for _, f := range []string{"policy.json", "rewards.png", "rewards.html", "traces.jsonl"} {
		if _, err := os.Stat(path.Join(dir, f)); err != nil {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}

	bs, err := os.ReadFile(path.Join(dir, "traces.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(bs), "\n"); lines != 20 {
		t.Errorf("got %d recorded traces, want 20", lines)
	}

	table := policies.NewQTable()
	if err := table.Read(path.Join(dir, "policy.json")); err != nil {
		t.Fatalf("reading the recorded policy: %v", err)
	}
	start := study.NewEnvironment().Reset()
	if table.Values(start) != result.Policy.QTable().Values(start) {
		t.Errorf("recorded values %v differ from the learned values %v", table.Values(start), result.Policy.QTable().Values(start))
	}
}

func TestTrainParallel(t *testing.T) {
	dir := t.TempDir()
	result, err := Train(context.Background(), TrainConfig{
		Episodes:    30,
		Workers:     3,
		Seed:        11,
		Preferences: study.DefaultPreferences(),
		Alpha:       policies.DefaultAlpha,
		Gamma:       policies.DefaultGamma,
		Epsilon:     policies.DefaultEpsilon,
		SavePath:    dir,
	})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(result.Rewards) != 30 {
		t.Errorf("got %d rewards, want 30", len(result.Rewards))
	}
	if result.Policy.QTable().Values(study.NewEnvironment().Reset()) == [types.NumActions]float64{} {
		t.Error("merged policy did not learn anything for the initial state")
	}

	bs, err := os.ReadFile(path.Join(dir, "traces.jsonl"))
	if err != nil {
		t.Fatalf("expected the traces of all the workers: %v", err)
	}
	if lines := strings.Count(string(bs), "\n"); lines != 30 {
		t.Errorf("got %d recorded traces, want 30", lines)
	}
	if _, err := os.Stat(path.Join(dir, "policy.json")); err != nil {
		t.Errorf("expected policy.json to be written: %v", err)
	}
}

func TestTrainRejectsInvalidConfig(t *testing.T) {
	cases := map[string]TrainConfig{
		"no episodes":   {Episodes: 0, Alpha: 0.1, Gamma: 0.9, Epsilon: 0.2},
		"alpha too big": {Episodes: 1, Alpha: 1.5, Gamma: 0.9, Epsilon: 0.2},
		"negative eps":  {Episodes: 1, Alpha: 0.1, Gamma: 0.9, Epsilon: -0.1},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Train(context.Background(), cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, TrainConfig{Episodes: 10, Alpha: 0.1, Gamma: 0.9, Epsilon: 0.2})
	if err != context.Canceled {
		t.Errorf("got %v, want %v", err, context.Canceled)
	}
}

func TestStudyComparison(t *testing.T) {
	dir := t.TempDir()
	comparison, err := NewStudyComparison(CompareConfig{
		Runs:        1,
		Episodes:    10,
		Horizon:     types.DefaultHorizon,
		Seed:        3,
		Preferences: study.DefaultPreferences(),
		SavePath:    dir,
		PlotWindow:  2,
	})
	if err != nil {
		t.Fatalf("NewStudyComparison() error = %v", err)
	}
	if len(comparison.Experiments) != 3 {
		t.Fatalf("got %d experiments, want 3", len(comparison.Experiments))
	}
	if err := comparison.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, f := range []string{
		"comparison_config.json",
		"0_rewards.json",
		"0_actions.json",
		"0_lengths.json",
		path.Join("plots", "0_rewards.png"),
		path.Join("charts", "0_rewards.html"),
		path.Join("policies", "QLearning_0.json"),
	} {
		if _, err := os.Stat(path.Join(dir, f)); err != nil {
			t.Errorf("expected %s to be written: %v", f, err)
		}
	}
}

func TestStudyComparisonSingleEpisode(t *testing.T) {
	dir := t.TempDir()
	comparison, err := NewStudyComparison(CompareConfig{
		Runs:        1,
		Episodes:    1,
		Horizon:     types.DefaultHorizon,
		Seed:        3,
		Preferences: study.DefaultPreferences(),
		SavePath:    dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := comparison.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	bs, err := os.ReadFile(path.Join(dir, "0_rewards.json"))
	if err != nil {
		t.Fatal(err)
	}
	summaries := map[string]types.RewardSummary{}
	if err := json.Unmarshal(bs, &summaries); err != nil {
		t.Fatal(err)
	}
	if s := summaries["QLearning"]; s.Episodes != 1 || s.StdDev != 0 {
		t.Errorf("got summary %+v for a single episode", s)
	}
}

func TestParsePreferences(t *testing.T) {
	prefs, err := parsePreferences("high", "long")
	if err != nil {
		t.Fatal(err)
	}
	if prefs.FatigueSensitivity != study.HighSensitivity || prefs.BreakBias != study.LongBias {
		t.Errorf("got %+v", prefs)
	}
	if _, err := parsePreferences("extreme", "long"); err == nil {
		t.Error("expected an error for an unknown sensitivity")
	}
	if _, err := parsePreferences("low", "nap"); err == nil {
		t.Error("expected an error for an unknown bias")
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, config.HistoryConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()
	if _, ok := store.(*history.MemStore); !ok {
		t.Errorf("got %T, want a memory store", store)
	}

	file := path.Join(t.TempDir(), "history.json")
	store, _, err = openStore(ctx, config.HistoryConfig{Backend: "file", Path: file})
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := store.(*history.FileStore); !ok || fs.Path() != file {
		t.Errorf("got %#v, want a file store at %s", store, file)
	}

	if _, _, err := openStore(ctx, config.HistoryConfig{Backend: "sqlite"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestRenderLearningStats(t *testing.T) {
	h := history.New()
	h.RecordAction(types.Continue)
	h.RecordAction(types.ShortBreak)
	h.RecordSession(60, 4.5, fixedTime)

	out := RenderLearningStats(h.LearningStats())
	for _, want := range []string{"Sessions: 1", "total study time: 60", "Continue", "Short Break", "4.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered stats missing %q:\n%s", want, out)
		}
	}
}
