package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/explorer"
)

var (
	episodes int
	horizon  int
	saveFile string
	runs     int
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "studybreak",
		Short: "Study break recommendations learned with Q-learning",
	}
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 500, "Number of episodes to run")
	rootCommand.PersistentFlags().IntVar(&horizon, "horizon", 1000, "Maximum number of steps of each episode")
	rootCommand.PersistentFlags().StringVarP(&saveFile, "save", "s", "results", "Save the result data in the specified folder")
	rootCommand.PersistentFlags().IntVar(&runs, "runs", 1, "Number of experiment runs")
	rootCommand.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to `file` in the save folder")
	rootCommand.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file` in the save folder")
	// adding the subcommands here
	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(CompareCommand())
	rootCommand.AddCommand(ServeCommand())
	rootCommand.AddCommand(HistoryCommand())
	rootCommand.AddCommand(explorer.ExploreCommand())
	return rootCommand
}

// interruptContext is cancelled on SIGINT or when the returned function is called
func interruptContext() (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt) // channel for interrupts from os

	doneCh := make(chan struct{}) // channel for done signal from application

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
		case <-doneCh:
		}
		signal.Stop(sigCh)
		cancel()
	}()
	return ctx, func() { close(doneCh) }
}
