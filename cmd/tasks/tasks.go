// Package tasks implements the tasks command listing the runnable tasks.
package tasks

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

// TasksCmd lists the tasks accepted by -task.
var TasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	Long: "List every task accepted by -task together with the task file it reads " +
		"from the resources directory.",
	Example: `  # List tasks
  cmxbatch tasks`,
	Args:    cobra.NoArgs,
	PreRunE: validateTasks,
	RunE:    runTasks,
}

func validateTasks(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Task file"})
	for _, task := range tasks.DefaultRegistry().Tasks() {
		t.AppendRow(table.Row{task.Name(), task.ConfigFile()})
	}
	t.Render()
	return nil
}
