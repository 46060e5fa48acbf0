package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm/internal/model"
)

// demoTasks builds the sample task list the dashboard counters need:
// one due today, one overdue, one open with no due date, one done.
func demoTasks(now time.Time) []model.Task {
	today := now.UTC()
	yesterday := today.AddDate(0, 0, -1)
	return []model.Task{
		{Title: "Follow up with Acme on renewal", Status: model.TaskOpen, DueAt: &today},
		{Title: "Send updated pricing deck", Status: model.TaskOpen, DueAt: &yesterday},
		{Title: "Draft Q3 outreach list", Status: model.TaskOpen},
		{Title: "Close out onboarding checklist", Status: model.TaskDone},
	}
}

var seedTasksCmd = &cobra.Command{
	Use:   "seed-tasks",
	Short: "Insert sample tasks for the dashboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.CreateTasks(ctx, demoTasks(time.Now()))
		if err != nil {
			return eris.Wrap(err, "seed tasks")
		}

		zap.L().Info("tasks seeded", zap.Int("created", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedTasksCmd)
}
