// Package validate implements the validate command, which checks a resources
// directory without contacting any server.
package validate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/cmxbatch/internal/cmdutil"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/report"
	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

// Flag variables for the validate command.
var (
	validateResourcesPath string
	validateTask          string
	validateShow          bool
)

// ErrInvalid is returned when the properties or a task file is invalid.
var ErrInvalid = errors.New("resources directory is invalid")

// ValidateCmd checks the properties file and task files of a resources directory.
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a resources directory without running anything",
	Long: "Load and validate the properties file and the task files of a resources directory.\n\n" +
		"No network call is made. Without -task every task file present is checked; " +
		"task files that do not exist are reported as absent.",
	Example: `  # Check everything in a resources directory
  cmxbatch validate -resourcesPath=./resources

  # Check one task only
  cmxbatch validate -resourcesPath=./resources -task=DeleteDocumentV3

  # Also print the effective connection settings, password masked
  cmxbatch validate -resourcesPath=./resources -show`,
	Args:    cobra.NoArgs,
	PreRunE: validateValidate,
	RunE:    runValidate,
}

func init() {
	ValidateCmd.Flags().StringVar(&validateResourcesPath, "resourcesPath", "",
		"Directory holding the properties and task files")
	ValidateCmd.Flags().StringVar(&validateTask, "task", "",
		"Check only this task")
	ValidateCmd.Flags().BoolVar(&validateShow, "show", false,
		"Print the effective connection settings with secrets masked")
}

func validateValidate(cmd *cobra.Command, args []string) error {
	if validateResourcesPath == "" {
		return cmdutil.Usagef("-resourcesPath is required")
	}
	if validateTask != "" {
		if _, err := tasks.DefaultRegistry().Lookup(validateTask); err != nil {
			return &cmdutil.UsageError{Err: err}
		}
	}

	// All validation passed - errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

type check struct {
	name   string
	file   string
	status string
	err    error
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := slog.Default()

	dir, err := cmdutil.ResourcesDir(validateResourcesPath)
	if err != nil {
		return err
	}

	registry := tasks.DefaultRegistry()
	selected := registry.Tasks()
	if validateTask != "" {
		task, err := registry.Lookup(validateTask)
		if err != nil {
			return err
		}
		selected = []tasks.Task{task}
	}

	var checks []check
	cfg, err := config.Load(dir)
	if err != nil {
		checks = append(checks, check{name: "properties", file: dir, status: "invalid", err: err})
	} else {
		logger.Debug("properties loaded", "path", cfg.Path)
		checks = append(checks, check{name: "properties", file: cfg.Path, status: "ok"})
	}

	for _, task := range selected {
		c := check{name: task.Name(), file: task.ConfigFile(), status: "ok"}
		if validateTask == "" && !exists(filepath.Join(dir, task.ConfigFile())) {
			c.status = "absent"
		} else if err := task.Configure(dir); err != nil {
			c.status, c.err = "invalid", err
		}
		checks = append(checks, c)
	}

	failed := render(cmd, checks)
	if validateShow && cfg != nil {
		if err := show(out, cfg); err != nil {
			return err
		}
	}
	if failed > 0 {
		fmt.Fprintln(out, report.ErrorText.Render(fmt.Sprintf("%s %d problem(s) found", report.IconError, failed)))
		return ErrInvalid
	}
	fmt.Fprintln(out, report.SuccessText.Render(report.IconSuccess+" resources directory is valid"))
	return nil
}

func render(cmd *cobra.Command, checks []check) int {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Check", "File", "Status", "Problem"})

	failed := 0
	for _, c := range checks {
		problem := ""
		if c.err != nil {
			failed++
			problem = c.err.Error()
		}
		t.AppendRow(table.Row{c.name, c.file, c.status, problem})
	}
	t.Render()
	return failed
}

// show prints cfg as YAML, defaults and environment overrides applied.
func show(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to render configuration; %w", err)
	}
	fmt.Fprintf(w, "\n# %s\n%s\n", cfg.Path, data)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
