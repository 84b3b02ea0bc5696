package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/zeu5/studybreak-rl/config"
	"github.com/zeu5/studybreak-rl/history"
	"github.com/zeu5/studybreak-rl/types"
)

// RenderLearningStats renders the stored history as tables
func RenderLearningStats(stats history.LearningStats) string {
	actions := table.NewWriter()
	actions.SetStyle(table.StyleLight)
	actions.SetTitle("Actions")
	actions.AppendHeader(table.Row{"Action", "Count", "Percentage"})
	for _, action := range types.AllActions {
		a := stats.ActionDistribution[action]
		actions.AppendRow(table.Row{a.Name, a.Count, fmt.Sprintf("%.1f%%", a.Percentage)})
	}

	sessions := table.NewWriter()
	sessions.SetStyle(table.StyleLight)
	sessions.SetTitle("Recent sessions")
	sessions.AppendHeader(table.Row{"Date", "Study time", "Reward"})
	for _, s := range stats.RecentSessions {
		sessions.AppendRow(table.Row{s.Date, s.StudyTime, fmt.Sprintf("%.2f", s.Reward)})
	}

	return fmt.Sprintf("Sessions: %d, total study time: %d minutes, average reward: %.2f\n%s\n%s",
		stats.TotalSessions, stats.TotalStudyTime, stats.AverageReward, actions.Render(), sessions.Render())
}

// HistoryCommand prints the stored session history
func HistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored study session history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, closeStore, err := openStore(ctx, cfg.History)
			if err != nil {
				return err
			}
			defer closeStore()

			h, err := store.Load(ctx)
			if err != nil {
				return err
			}
			fmt.Println(RenderLearningStats(h.LearningStats()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file, studybreak.yaml in . or ./config by default")
	return cmd
}
