package commands

import (
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
)

type CompareConfig struct {
	Runs        int
	Episodes    int
	Horizon     int
	Seed        uint64
	Preferences study.Preferences
	SavePath    string
	// window of the moving average of the reward plots
	PlotWindow   int
	RecordTraces bool
}

// NewStudyComparison sets up q-learning, random and the fatigue threshold heuristic
// on the same study sessions, with the reward, action and length analyses
func NewStudyComparison(config CompareConfig) (*types.Comparison, error) {
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano())
	}
	if config.PlotWindow <= 0 {
		config.PlotWindow = 10
	}
	comparison, err := types.NewComparison(&types.ComparisonConfig{
		Runs:         config.Runs,
		Episodes:     config.Episodes,
		Horizon:      config.Horizon,
		RecordPath:   config.SavePath,
		RecordTraces: config.RecordTraces,
		RecordPolicy: true,
	})
	if err != nil {
		return nil, err
	}

	comparison.AddAnalysis("rewards", types.NewRewardAnalyzer, types.RewardPlotComparator(path.Join(config.SavePath, "plots"), config.PlotWindow))
	comparison.AddAnalysis("reward_charts", types.NewRewardAnalyzer, types.RewardChartComparator(path.Join(config.SavePath, "charts"), config.PlotWindow))
	comparison.AddAnalysis("reward_summary", types.NewRewardAnalyzer, types.RewardSummaryComparator(config.SavePath))
	comparison.AddAnalysis("actions", types.NewActionAnalyzer, types.ActionComparator(config.SavePath))
	comparison.AddAnalysis("lengths", types.NewLengthAnalyzer, types.LengthComparator(config.SavePath))

	comparison.AddExperiment(types.NewExperiment(
		"QLearning",
		policies.NewQLearningPolicyWithSeed(policies.DefaultAlpha, policies.DefaultGamma, policies.DefaultEpsilon, config.Seed),
		study.NewEnvironmentWithPreferences(config.Preferences),
	))
	comparison.AddExperiment(types.NewExperiment(
		"Random",
		types.NewRandomPolicyWithSeed(config.Seed+1),
		study.NewEnvironmentWithPreferences(config.Preferences),
	))
	comparison.AddExperiment(types.NewExperiment(
		"FatigueThreshold",
		policies.NewFatigueThresholdPolicy(),
		study.NewEnvironmentWithPreferences(config.Preferences),
	))
	return comparison, nil
}

func CompareCommand() *cobra.Command {
	var (
		seed         uint64
		fatigue      string
		bias         string
		window       int
		recordTraces bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare q-learning against the random and the fatigue threshold policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := parsePreferences(fatigue, bias)
			if err != nil {
				return err
			}
			comparison, err := NewStudyComparison(CompareConfig{
				Runs:         runs,
				Episodes:     episodes,
				Horizon:      horizon,
				Seed:         seed,
				Preferences:  prefs,
				SavePath:     saveFile,
				PlotWindow:   window,
				RecordTraces: recordTraces,
			})
			if err != nil {
				return err
			}

			stopProfiling, err := startProfiling()
			if err != nil {
				return err
			}
			defer stopProfiling()

			ctx, done := interruptContext()
			defer done()
			return comparison.Run(ctx)
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed, 0 seeds from the clock")
	cmd.Flags().StringVar(&fatigue, "fatigue", "medium", "Fatigue sensitivity: low, medium or high")
	cmd.Flags().StringVar(&bias, "bias", "study", "Break bias: study, short or long")
	cmd.Flags().IntVar(&window, "window", 10, "Episodes averaged in the reward plots")
	cmd.Flags().BoolVar(&recordTraces, "traces", false, "Record the traces of every episode")
	return cmd
}

func parsePreferences(fatigue, bias string) (study.Preferences, error) {
	f, ok := study.ParseFatigueSensitivity(fatigue)
	if !ok {
		return study.Preferences{}, fmt.Errorf("unknown fatigue sensitivity %q", fatigue)
	}
	b, ok := study.ParseBreakBias(bias)
	if !ok {
		return study.Preferences{}, fmt.Errorf("unknown break bias %q", bias)
	}
	return study.Preferences{FatigueSensitivity: f, BreakBias: b}, nil
}
