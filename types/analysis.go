package types

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/zeu5/studybreak-rl/util"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RewardAnalyzer collects the total reward of every episode
type RewardAnalyzer struct {
	rewards []float64
}

var _ Analyzer = &RewardAnalyzer{}

func NewRewardAnalyzer() Analyzer {
	return &RewardAnalyzer{rewards: make([]float64, 0)}
}

func (r *RewardAnalyzer) Analyze(_, _ int, _ string, t *Trace) {
	r.rewards = append(r.rewards, t.TotalReward())
}

func (r *RewardAnalyzer) DataSet() DataSet {
	out := make([]float64, len(r.rewards))
	copy(out, r.rewards)
	return out
}

func (r *RewardAnalyzer) Reset() {
	r.rewards = make([]float64, 0)
}

// ActionDataSet is the distribution of the actions taken across episodes
type ActionDataSet struct {
	Counts   [NumActions]int `json:"counts"`
	Steps    int             `json:"steps"`
	Episodes int             `json:"episodes"`
	Finished int             `json:"finished"`
}

// Fraction of the steps in which the action was taken
func (a *ActionDataSet) Fraction(action Action) float64 {
	if a.Steps == 0 || !action.Valid() {
		return 0
	}
	return float64(a.Counts[action]) / float64(a.Steps)
}

type ActionAnalyzer struct {
	ds *ActionDataSet
}

var _ Analyzer = &ActionAnalyzer{}

func NewActionAnalyzer() Analyzer {
	return &ActionAnalyzer{ds: &ActionDataSet{}}
}

func (a *ActionAnalyzer) Analyze(_, _ int, _ string, t *Trace) {
	counts := t.ActionCounts()
	for i, c := range counts {
		a.ds.Counts[i] += c
	}
	a.ds.Steps += t.Len()
	a.ds.Episodes += 1
	if t.Done {
		a.ds.Finished += 1
	}
}

func (a *ActionAnalyzer) DataSet() DataSet {
	cp := *a.ds
	return &cp
}

func (a *ActionAnalyzer) Reset() {
	a.ds = &ActionDataSet{}
}

// LengthAnalyzer collects the number of steps of every episode
type LengthAnalyzer struct {
	lengths []float64
}

var _ Analyzer = &LengthAnalyzer{}

func NewLengthAnalyzer() Analyzer {
	return &LengthAnalyzer{lengths: make([]float64, 0)}
}

func (l *LengthAnalyzer) Analyze(_, _ int, _ string, t *Trace) {
	l.lengths = append(l.lengths, float64(t.Len()))
}

func (l *LengthAnalyzer) DataSet() DataSet {
	out := make([]float64, len(l.lengths))
	copy(out, l.lengths)
	return out
}

func (l *LengthAnalyzer) Reset() {
	l.lengths = make([]float64, 0)
}

// smooth the values with a trailing window average
func movingAverage(values []float64, window int) []float64 {
	if window <= 1 {
		return values
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
			out[i] = sum / float64(window)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// PlotRewards saves the (smoothed) reward curves as a png image
func PlotRewards(file string, names []string, rewards [][]float64, window int) error {
	p := plot.New()
	p.Title.Text = "Comparison"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "Total reward"
	for i := 0; i < len(names); i++ {
		smoothed := movingAverage(rewards[i], window)
		points := make(plotter.XYs, len(smoothed))
		for j, v := range smoothed {
			points[j] = plotter.XY{
				X: float64(j),
				Y: v,
			}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			continue
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(names[i], line)
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, file)
}

// ChartRewards renders the (smoothed) reward curves as an interactive html chart
func ChartRewards(file, subtitle string, names []string, rewards [][]float64, window int) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Episode reward",
			Subtitle: subtitle,
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Reward"}),
	)

	episodes := 0
	for _, r := range rewards {
		if len(r) > episodes {
			episodes = len(r)
		}
	}
	xAxis := make([]string, 0, episodes)
	for i := 0; i < episodes; i++ {
		xAxis = append(xAxis, strconv.Itoa(i))
	}
	line = line.SetXAxis(xAxis)
	for i, name := range names {
		smoothed := movingAverage(rewards[i], window)
		items := make([]opts.LineData, 0, len(smoothed))
		for _, r := range smoothed {
			items = append(items, opts.LineData{Value: r})
		}
		line.AddSeries(name, items)
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

func rewardDataSets(ds []DataSet) [][]float64 {
	out := make([][]float64, len(ds))
	for i, d := range ds {
		out[i] = d.([]float64)
	}
	return out
}

// RewardPlotComparator plots the reward curves of all the experiments
func RewardPlotComparator(plotPath string, window int) Comparator {
	return func(run, _ int, names []string, ds []DataSet) error {
		if err := os.MkdirAll(plotPath, os.ModePerm); err != nil {
			return err
		}
		return PlotRewards(path.Join(plotPath, strconv.Itoa(run)+"_rewards.png"), names, rewardDataSets(ds), window)
	}
}

// RewardChartComparator renders the reward curves of all the experiments as html
func RewardChartComparator(chartPath string, window int) Comparator {
	return func(run, _ int, names []string, ds []DataSet) error {
		if err := os.MkdirAll(chartPath, os.ModePerm); err != nil {
			return err
		}
		subtitle := fmt.Sprintf("run %d, moving average over %d episodes", run, window)
		return ChartRewards(path.Join(chartPath, strconv.Itoa(run)+"_rewards.html"), subtitle, names, rewardDataSets(ds), window)
	}
}

// RewardSummary of the episode rewards of one experiment
type RewardSummary struct {
	Episodes int     `json:"episodes"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Max      float64 `json:"max"`
	Min      float64 `json:"min"`
	// mean over the last tenth of the episodes
	FinalMean float64 `json:"final_mean"`
}

func SummarizeRewards(rewards []float64) RewardSummary {
	if len(rewards) == 0 {
		return RewardSummary{}
	}
	mean, std := stat.MeanStdDev(rewards, nil)
	if len(rewards) < 2 {
		// the unbiased estimate is NaN for a single episode
		std = 0
	}
	tail := len(rewards) / 10
	if tail == 0 {
		tail = 1
	}
	return RewardSummary{
		Episodes:  len(rewards),
		Mean:      mean,
		StdDev:    std,
		Max:       floats.Max(rewards),
		Min:       floats.Min(rewards),
		FinalMean: stat.Mean(rewards[len(rewards)-tail:], nil),
	}
}

// RewardSummaryComparator prints the reward statistics and stores them as json
func RewardSummaryComparator(savePath string) Comparator {
	return func(run, _ int, names []string, ds []DataSet) error {
		data := make(map[string]RewardSummary)
		for i, name := range names {
			summary := SummarizeRewards(ds[i].([]float64))
			fmt.Printf("For run: %d, experiment: %s\n", run, name)
			fmt.Printf("\tMean reward: %.3f (std %.3f), final: %.3f, max: %.3f, min: %.3f\n",
				summary.Mean, summary.StdDev, summary.FinalMean, summary.Max, summary.Min)
			data[name] = summary
		}
		return util.WriteJSON(path.Join(savePath, strconv.Itoa(run)+"_rewards.json"), data)
	}
}

// ActionComparator prints the action distribution and stores it as json
func ActionComparator(savePath string) Comparator {
	return func(run, _ int, names []string, ds []DataSet) error {
		data := make(map[string]*ActionDataSet)
		for i, name := range names {
			actions := ds[i].(*ActionDataSet)
			fmt.Printf("For run: %d, experiment: %s, finished %d/%d episodes\n", run, name, actions.Finished, actions.Episodes)
			for _, a := range AllActions {
				fmt.Printf("\t%s: %d (%.1f%%)\n", a.Info().Name, actions.Counts[a], actions.Fraction(a)*100)
			}
			data[name] = actions
		}
		return util.WriteJSON(path.Join(savePath, strconv.Itoa(run)+"_actions.json"), data)
	}
}

// LengthComparator prints the episode length statistics and stores them as json
func LengthComparator(savePath string) Comparator {
	return func(run, _ int, names []string, ds []DataSet) error {
		data := make(map[string]RewardSummary)
		for i, name := range names {
			summary := SummarizeRewards(ds[i].([]float64))
			fmt.Printf("For run: %d, experiment: %s, mean episode length: %.1f (max %.0f)\n", run, name, summary.Mean, summary.Max)
			data[name] = summary
		}
		return util.WriteJSON(path.Join(savePath, strconv.Itoa(run)+"_lengths.json"), data)
	}
}
