package types

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/zeu5/studybreak-rl/util"
)

type experimentRunConfig struct {
	CurrentRun int
	Episodes   int
	Horizon    int
	Analyzers  []Analyzer
	Context    context.Context

	// record flags
	RecordTraces bool
	RecordPolicy bool

	ReportSavePath string

	LongestExpNameLen int
}

// Recorder is implemented by policies that can dump what they learned
type Recorder interface {
	Record(string) error
}

// Experiment encapsulates the different parameters to configure an agent and analyze the traces
type Experiment struct {
	Name        string
	policy      Policy
	environment Environment
}

// NewExperiment creates a new experiment instance
func NewExperiment(name string, policy Policy, environment Environment) *Experiment {
	return &Experiment{
		Name:        name,
		policy:      policy,
		environment: environment,
	}
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	return util.AppendJSONLine(tracesFile, trace)
}

// Run the experiment for the specified number of episodes
// Each trace is handed to all the analyzers
func (e *Experiment) Run(rConfig *experimentRunConfig) error {
	agent := NewAgent(&AgentConfig{
		Episodes:    rConfig.Episodes,
		Horizon:     rConfig.Horizon,
		Policy:      e.policy,
		Environment: e.environment,
	})

	EPPadding := len(strconv.Itoa(rConfig.Episodes))
	NamePadding := rConfig.LongestExpNameLen
	totalTerminal := 0

	for episode := 0; episode < rConfig.Episodes; episode++ {
		select {
		case <-rConfig.Context.Done():
			fmt.Println("")
			return rConfig.Context.Err()
		default:
		}

		trace := agent.RunEpisode(episode)
		if trace.Done {
			totalTerminal += 1
		}

		if rConfig.RecordTraces {
			if err := e.recordTrace(rConfig, trace); err != nil {
				return fmt.Errorf("recording trace: %w", err)
			}
		}

		for _, a := range rConfig.Analyzers {
			a.Analyze(rConfig.CurrentRun, episode, e.Name, trace)
		}

		// terminal execution display
		fmt.Printf("\rExp:%*s, Eps:%*d/%d, Finished:%*d, Reward:%8.2f",
			NamePadding, e.Name, EPPadding, episode+1, rConfig.Episodes, EPPadding, totalTerminal, trace.TotalReward())
	}

	if rConfig.RecordPolicy {
		if r, ok := e.policy.(Recorder); ok {
			if err := r.Record(path.Join(rConfig.ReportSavePath, "policies", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".json")); err != nil {
				return fmt.Errorf("recording policy: %w", err)
			}
		}
	}

	fmt.Println("")
	return nil
}

// Reset cleans the information learned by the policy
func (e *Experiment) Reset() {
	e.policy.Reset()
}

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the traces to a DataSet
type Analyzer interface {
	// Run, episode, experiment, trace
	Analyze(int, int, string, *Trace)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between different datasets with associated names
// run, total episodes, experiment names, datasets
type Comparator func(int, int, []string, []DataSet) error

func NoopComparator() Comparator {
	return func(_, _ int, _ []string, _ []DataSet) error { return nil }
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // max number of steps per episode

	RecordPath string // path to store the results

	// record flags
	RecordTraces bool
	RecordPolicy bool
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	cfg := c.cConfig

	out := make(map[string]interface{})
	out["runs"] = cfg.Runs
	out["episodes"] = cfg.Episodes
	out["horizon"] = cfg.Horizon
	out["record_traces"] = cfg.RecordTraces
	out["record_policy"] = cfg.RecordPolicy

	experiments := make([]string, 0)
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments

	analyzers := make([]string, 0)
	for _, name := range c.analyzerNames {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	return util.WriteJSON(path.Join(cfg.RecordPath, "comparison_config.json"), out)
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments   []*Experiment
	analyzerNames []string
	analyzers     map[string]func() Analyzer
	comparators   map[string]Comparator
	cConfig       *ComparisonConfig
}

// NewComparison creates a comparison instance and the folders to record into
func NewComparison(config *ComparisonConfig) (*Comparison, error) {
	foldersToCreate := []string{""}
	if config.RecordTraces {
		foldersToCreate = append(foldersToCreate, "traces")
	}
	if config.RecordPolicy {
		foldersToCreate = append(foldersToCreate, "policies")
	}
	for _, s := range foldersToCreate {
		if err := os.MkdirAll(path.Join(config.RecordPath, s), 0777); err != nil {
			return nil, err
		}
	}

	return &Comparison{
		Experiments:   make([]*Experiment, 0),
		analyzerNames: make([]string, 0),
		analyzers:     make(map[string]func() Analyzer),
		comparators:   make(map[string]Comparator),
		cConfig:       config,
	}, nil
}

// AddAnalysis adds an analyzer constructor and comparator to the comparison.
// A fresh analyzer is created for every experiment
func (c *Comparison) AddAnalysis(name string, analyzer func() Analyzer, comparator Comparator) {
	if _, ok := c.analyzers[name]; !ok {
		c.analyzerNames = append(c.analyzerNames, name)
	}
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// Run the comparison
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil {
		return fmt.Errorf("recording comparison config: %w", err)
	}

	longestNameLen := 0
	for _, e := range c.Experiments {
		if len(e.Name) > longestNameLen {
			longestNameLen = len(e.Name)
		}
	}

	for run := 0; run < c.cConfig.Runs; run++ {
		fmt.Printf("Run %d\n", run+1)
		datasets := make(map[string][]DataSet)
		for _, name := range c.analyzerNames {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			analyzers := make(map[string]Analyzer)
			for _, name := range c.analyzerNames {
				analyzers[name] = c.analyzers[name]()
			}

			rConfig := c.prepareRunConfig(ctx, run, longestNameLen, analyzers)
			if err := e.Run(rConfig); err != nil {
				return err
			}
			for name, a := range analyzers {
				datasets[name][i] = a.DataSet()
			}
			names[i] = e.Name
			e.Reset()
		}
		for _, name := range c.analyzerNames {
			if err := c.comparators[name](run, c.cConfig.Episodes, names, datasets[name]); err != nil {
				return fmt.Errorf("comparator %s: %w", name, err)
			}
		}
	}
	return nil
}

// prepare the run configuration for the experiment
func (c *Comparison) prepareRunConfig(ctx context.Context, run, longestExpNameLen int, analyzers map[string]Analyzer) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:     run,
		Episodes:       c.cConfig.Episodes,
		Horizon:        c.cConfig.Horizon,
		Analyzers:      make([]Analyzer, 0, len(analyzers)),
		RecordTraces:   c.cConfig.RecordTraces,
		RecordPolicy:   c.cConfig.RecordPolicy,
		ReportSavePath: c.cConfig.RecordPath,
		Context:        ctx,

		LongestExpNameLen: longestExpNameLen,
	}
	for _, name := range c.analyzerNames {
		rCfg.Analyzers = append(rCfg.Analyzers, analyzers[name])
	}
	return rCfg
}
