package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leefowlercu/cmxbatch/cmd/stats"
	taskscmd "github.com/leefowlercu/cmxbatch/cmd/tasks"
	"github.com/leefowlercu/cmxbatch/cmd/validate"
	"github.com/leefowlercu/cmxbatch/cmd/version"
	"github.com/leefowlercu/cmxbatch/internal/cmdutil"
	"github.com/leefowlercu/cmxbatch/internal/logging"
	"github.com/leefowlercu/cmxbatch/internal/tasks"
)

// logManager is the global logging manager, created in init() and upgraded after config loads
var logManager *logging.Manager

// Flag variables for the root command.
var (
	resourcesPath string
	taskName      string
)

// exitCode is set by a run that reached classification.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "cmxbatch",
	Short: "Bulk document operations against a CMX Core document store",
	Long: "cmxbatch selects documents of a CMX Core store with a criteria expression and " +
		"runs one task over them: existence checks, CSV inventories, deletion or full data dumps.\n\n" +
		"The resources directory holds one *.properties file with the connection settings " +
		"and the JSON file of each task. Exit codes: 0 completed, 1 failed, " +
		"2 partially completed, 64 usage error.",
	Example: `  # Delete the documents selected by deleteDocument.json
  cmxbatch -resourcesPath=./resources -task=DeleteDocumentV3

  # List the tasks and their task files
  cmxbatch tasks`,
	Args:    usageArgs(cobra.NoArgs),
	PreRunE: validateRun,
	RunE:    runTask,
}

func init() {
	logManager = logging.NewManager()
	slog.SetDefault(logManager.Logger())

	rootCmd.Flags().StringVar(&resourcesPath, "resourcesPath", "",
		"Directory holding the properties and task files")
	rootCmd.Flags().StringVar(&taskName, "task", "",
		"Task to run (see 'cmxbatch tasks')")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &cmdutil.UsageError{Err: err}
	})

	rootCmd.AddCommand(taskscmd.TasksCmd)
	rootCmd.AddCommand(validate.ValidateCmd)
	rootCmd.AddCommand(stats.StatsCmd)
	rootCmd.AddCommand(version.VersionCmd)
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &cmdutil.UsageError{Err: err}
		}
		return nil
	}
}

func validateRun(cmd *cobra.Command, args []string) error {
	registry := tasks.DefaultRegistry()
	if resourcesPath == "" {
		return cmdutil.Usagef("-resourcesPath is required")
	}
	if taskName == "" {
		return cmdutil.Usagef("-task is required; valid tasks are %s", strings.Join(registry.Names(), ", "))
	}
	if _, err := registry.Lookup(taskName); err != nil {
		return &cmdutil.UsageError{Err: err}
	}

	// All validation passed - errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

// Execute runs the command line and returns the process exit code.
// SIGINT and SIGTERM cancel a running task.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(normalizeArgs(args, longFlags(rootCmd)))
	exitCode = tasks.ExitCompleted

	defer func() { _ = logManager.Close() }()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return exitCode
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	if !cmdutil.IsUsage(err) {
		return tasks.ExitFailed
	}
	if cmd == nil {
		cmd = rootCmd
	}
	fmt.Fprintln(stderr)
	cmd.SetOut(stderr)
	_ = cmd.Usage()
	return tasks.ExitUsage
}

// normalizeArgs rewrites single-dash long flags (-task=X) to the double-dash
// form. Only names registered as long flags are rewritten so shorthand
// groups such as -r keep working.
func normalizeArgs(args []string, long map[string]bool) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			name, _, _ := strings.Cut(arg[1:], "=")
			if long[name] {
				arg = "-" + arg
			}
		}
		out = append(out, arg)
	}
	return out
}

// longFlags collects the multi-letter flag names of cmd and its subcommands.
func longFlags(cmd *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		collect := func(f *pflag.Flag) {
			if len(f.Name) > 1 {
				names[f.Name] = true
			}
		}
		c.Flags().VisitAll(collect)
		c.PersistentFlags().VisitAll(collect)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(cmd)
	return names
}
