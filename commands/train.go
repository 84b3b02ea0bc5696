package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/policies"
	"github.com/zeu5/studybreak-rl/study"
	"github.com/zeu5/studybreak-rl/types"
	"github.com/zeu5/studybreak-rl/util"
)

// TrainConfig of a batch training run
type TrainConfig struct {
	Episodes int
	Horizon  int
	// more than one worker trains in parallel and merges the learned values
	Workers     int
	Seed        uint64
	Preferences study.Preferences

	Alpha   float64
	Gamma   float64
	Epsilon float64

	// folder to write the results to, nothing is written when empty
	SavePath string
	// window of the moving average of the reward plots
	PlotWindow   int
	ShowProgress bool
}

type TrainResult struct {
	Policy   *policies.QLearningPolicy
	Rewards  []float64
	Finished int
}

func (c *TrainConfig) validate() error {
	if c.Episodes <= 0 {
		return errors.New("episodes should be positive")
	}
	for name, v := range map[string]float64{"alpha": c.Alpha, "gamma": c.Gamma, "epsilon": c.Epsilon} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s should be in [0, 1]", name)
		}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Horizon <= 0 {
		c.Horizon = types.DefaultHorizon
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
	if c.PlotWindow <= 0 {
		c.PlotWindow = 10
	}
	return nil
}

// Train runs the Q-learning agent on study sessions with the given preferences
func Train(ctx context.Context, config TrainConfig) (*TrainResult, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.SavePath != "" {
		if err := os.MkdirAll(config.SavePath, os.ModePerm); err != nil {
			return nil, err
		}
	}

	policy := policies.NewQLearningPolicyWithSeed(config.Alpha, config.Gamma, config.Epsilon, config.Seed)
	result := &TrainResult{Policy: policy}

	if config.Workers == 1 {
		agent := types.NewAgent(&types.AgentConfig{
			Episodes:    config.Episodes,
			Horizon:     config.Horizon,
			Policy:      policy,
			Environment: study.NewEnvironmentWithPreferences(config.Preferences),
		})
		tracesFile := path.Join(config.SavePath, "traces.jsonl")
		if config.SavePath != "" {
			os.Remove(tracesFile)
		}
		for e := 0; e < config.Episodes; e++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			trace := agent.RunEpisode(e)
			result.Rewards = append(result.Rewards, trace.TotalReward())
			if trace.Done {
				result.Finished += 1
			}
			if config.SavePath != "" {
				if err := util.AppendJSONLine(tracesFile, trace); err != nil {
					return nil, fmt.Errorf("recording trace: %w", err)
				}
			}
			if config.ShowProgress {
				fmt.Printf("\rEps:%*d/%d, Reward:%8.2f", len(fmt.Sprint(config.Episodes)), e+1, config.Episodes, trace.TotalReward())
			}
		}
		if config.ShowProgress {
			fmt.Println("")
		}
	} else {
		pResult, err := types.TrainParallel(ctx, types.ParallelConfig{
			Workers:  config.Workers,
			Episodes: config.Episodes,
			Horizon:  config.Horizon,
			NewEnvironment: func(_ int) types.Environment {
				return study.NewEnvironmentWithPreferences(config.Preferences)
			},
			KeepTraces:   config.SavePath != "",
			ShowProgress: config.ShowProgress,
		}, policy)
		if err != nil {
			return nil, err
		}
		result.Rewards = pResult.Flatten()
		if config.SavePath != "" {
			if err := recordTraces(path.Join(config.SavePath, "traces.jsonl"), pResult.Traces); err != nil {
				return nil, err
			}
		}
		for _, f := range pResult.Finished {
			result.Finished += f
		}
	}

	if config.SavePath != "" {
		if err := policy.Record(path.Join(config.SavePath, "policy.json")); err != nil {
			return nil, fmt.Errorf("recording policy: %w", err)
		}
		names := []string{"q-learning"}
		rewards := [][]float64{result.Rewards}
		if err := types.PlotRewards(path.Join(config.SavePath, "rewards.png"), names, rewards, config.PlotWindow); err != nil {
			return nil, fmt.Errorf("plotting rewards: %w", err)
		}
		subtitle := fmt.Sprintf("%d episodes, moving average over %d episodes", config.Episodes, config.PlotWindow)
		if err := types.ChartRewards(path.Join(config.SavePath, "rewards.html"), subtitle, names, rewards, config.PlotWindow); err != nil {
			return nil, fmt.Errorf("charting rewards: %w", err)
		}
	}
	return result, nil
}

// recordTraces replaces the file with the traces, worker after worker
func recordTraces(tracesFile string, traces [][]*types.Trace) error {
	if err := os.Remove(tracesFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, worker := range traces {
		for _, t := range worker {
			if err := util.AppendJSONLine(tracesFile, t); err != nil {
				return fmt.Errorf("recording trace: %w", err)
			}
		}
	}
	return nil
}

func TrainCommand() *cobra.Command {
	var (
		seed    uint64
		workers int
		fatigue string
		bias    string
		alpha   float64
		gamma   float64
		epsilon float64
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the agent on simulated study sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := parsePreferences(fatigue, bias)
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

			result, err := Train(ctx, TrainConfig{
				Episodes:     episodes,
				Horizon:      horizon,
				Workers:      workers,
				Seed:         seed,
				Preferences:  prefs,
				Alpha:        alpha,
				Gamma:        gamma,
				Epsilon:      epsilon,
				SavePath:     saveFile,
				ShowProgress: !quiet,
			})
			if err != nil {
				return err
			}

			fmt.Println("Training completed.")
			summary := types.SummarizeRewards(result.Rewards)
			fmt.Printf("Episodes: %d (finished %d), mean reward: %.3f, final mean reward: %.3f, max: %.3f, min: %.3f\n",
				summary.Episodes, result.Finished, summary.Mean, summary.FinalMean, summary.Max, summary.Min)
			fmt.Println(result.Policy.QTable().Printable(func(s types.State) bool {
				return s.FatiguePref == int(prefs.FatigueSensitivity) && s.BreakBias == int(prefs.BreakBias)
			}))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed, 0 seeds from the clock")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of parallel workers")
	cmd.Flags().StringVar(&fatigue, "fatigue", "medium", "Fatigue sensitivity: low, medium or high")
	cmd.Flags().StringVar(&bias, "bias", "study", "Break bias: study, short or long")
	cmd.Flags().Float64Var(&alpha, "alpha", policies.DefaultAlpha, "Learning rate")
	cmd.Flags().Float64Var(&gamma, "gamma", policies.DefaultGamma, "Discount factor")
	cmd.Flags().Float64Var(&epsilon, "epsilon", policies.DefaultEpsilon, "Exploration probability")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the progress")
	return cmd
}
