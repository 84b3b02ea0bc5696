package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
	"golang.org/x/sync/errgroup"
)

var ErrNoWorkers = errors.New("at least one worker is required")

// ParallelConfig configures a parallel training run
type ParallelConfig struct {
	Workers  int
	Episodes int // total episodes, split across the workers
	Horizon  int
	// NewEnvironment creates the environment of one worker
	NewEnvironment func(worker int) Environment
	// keep the trace of every episode in the result
	KeepTraces bool

	// Print the progress of the workers to the terminal
	ShowProgress bool
	// seconds between two refreshes of the progress
	PrintFrequency int
}

// ParallelResult contains the rewards collected by each worker
type ParallelResult struct {
	Rewards [][]float64
	// Number of episodes of each worker that reached the terminal condition
	Finished []int
	// Traces of each worker, only with KeepTraces
	Traces [][]*Trace
}

// All the rewards, worker after worker
func (r *ParallelResult) Flatten() []float64 {
	out := make([]float64, 0)
	for _, w := range r.Rewards {
		out = append(out, w...)
	}
	return out
}

func splitEpisodes(episodes, workers int) []int {
	out := make([]int, workers)
	for i := 0; i < workers; i++ {
		out[i] = episodes / workers
		if i < episodes%workers {
			out[i] += 1
		}
	}
	return out
}

// TrainParallel trains clones of the policy on separate environments concurrently.
// Once all the workers are done the learned values are merged back into the policy
func TrainParallel(ctx context.Context, config ParallelConfig, policy MergeablePolicy) (*ParallelResult, error) {
	if config.Workers <= 0 {
		return nil, ErrNoWorkers
	}
	if config.NewEnvironment == nil {
		return nil, errors.New("no environment constructor")
	}
	if config.PrintFrequency <= 0 {
		config.PrintFrequency = 1
	}

	episodes := splitEpisodes(config.Episodes, config.Workers)
	clones := make([]MergeablePolicy, config.Workers)
	outputs := make([]*ParallelOutput, config.Workers)
	result := &ParallelResult{
		Rewards:  make([][]float64, config.Workers),
		Finished: make([]int, config.Workers),
		Traces:   make([][]*Trace, config.Workers),
	}
	for i := 0; i < config.Workers; i++ {
		clones[i] = policy.Clone()
		outputs[i] = NewParallelOutput()
	}

	var printer *TerminalPrinter
	if config.ShowProgress {
		printer = NewTerminalPrinter(ctx, &outputs, config.PrintFrequency)
		printer.Start()
		defer printer.Stop()
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < config.Workers; i++ {
		worker := i
		g.Go(func() error {
			output := outputs[worker]
			agent := NewAgent(&AgentConfig{
				Episodes:    episodes[worker],
				Horizon:     config.Horizon,
				Policy:      clones[worker],
				Environment: config.NewEnvironment(worker),
			})
			rewards := make([]float64, 0, episodes[worker])
			for e := 0; e < episodes[worker]; e++ {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				default:
				}
				trace := agent.RunEpisode(e)
				rewards = append(rewards, trace.TotalReward())
				if config.KeepTraces {
					result.Traces[worker] = append(result.Traces[worker], trace)
				}
				if trace.Done {
					result.Finished[worker] += 1
				}
				output.TrySet(fmt.Sprintf("Worker %d: episode %d/%d, reward %8.2f", worker, e+1, episodes[worker], trace.TotalReward()))
			}
			output.Set(fmt.Sprintf("Worker %d: completed %d episodes", worker, episodes[worker]))
			result.Rewards[worker] = rewards
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := policy.Merge(clones); err != nil {
		return nil, fmt.Errorf("merging worker policies: %w", err)
	}
	return result, nil
}

// TERMINAL PRINTER

type TerminalPrinter struct {
	parallelOutputs *[]*ParallelOutput
	ctx             context.Context
	printerCtx      context.Context
	printerCancel   context.CancelFunc
	frequency       int

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(ctx context.Context, parallelOutputs *[]*ParallelOutput, frequency int) *TerminalPrinter {
	printerCtx, cancel := context.WithCancel(ctx)
	size := len(*parallelOutputs)
	writers := make([]io.Writer, size)
	writer := uilive.New()
	for i := 0; i < size-1; i++ {
		writers[i] = writer.Newline()
	}

	return &TerminalPrinter{
		parallelOutputs: parallelOutputs,
		ctx:             ctx,
		printerCtx:      printerCtx,
		printerCancel:   cancel,
		frequency:       frequency,

		writer:  writer,
		writers: writers,
	}
}

func (p *TerminalPrinter) Start() {
	p.writer.Start()
	go func() {
		for {
			select {
			case <-p.printerCtx.Done():
				p.print()
				p.writer.Stop()
				return
			case <-p.ctx.Done():
				p.writer.Stop()
				return
			case <-time.After(time.Duration(p.frequency) * time.Second):
				p.print()
			}
		}
	}()
}

func (p *TerminalPrinter) Stop() {
	p.printerCancel()
}

func (p *TerminalPrinter) print() {
	for i, output := range *p.parallelOutputs {
		s := output.Get()
		if s == "" {
			continue
		}
		if i == 0 {
			fmt.Fprint(p.writer, s+"\n")
		} else {
			fmt.Fprint(p.writers[i-1], s+"\n")
		}
	}
	p.writer.Flush()
}

// PARALLEL OUTPUT

// used to update and print worker outputs
type ParallelOutput struct {
	mu        sync.Mutex
	printable string
}

func NewParallelOutput() *ParallelOutput {
	return &ParallelOutput{
		mu:        sync.Mutex{},
		printable: "",
	}
}

// Set the output string (blocking)
func (p *ParallelOutput) Set(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printable = s
}

// Try to set the output string (non-blocking)
func (p *ParallelOutput) TrySet(s string) bool {
	if p.mu.TryLock() {
		defer p.mu.Unlock()
		p.printable = s
		return true
	}
	return false
}

// Get the output string (blocking)
func (p *ParallelOutput) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printable
}
