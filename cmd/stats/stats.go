// Package stats implements the stats command reporting on transfer databases.
package stats

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/cmxbatch/internal/cmdutil"
	"github.com/leefowlercu/cmxbatch/internal/report"
	"github.com/leefowlercu/cmxbatch/internal/transfer"
)

// Flag variables for the stats command.
var (
	statsRecursive  bool
	statsExport     string
	statsFileSystem string
)

// ErrNoDatabases is returned when the folder holds no transfer database.
var ErrNoDatabases = errors.New("no transfer database found")

// StatsCmd reports on the databases written by the file transfer tool.
var StatsCmd = &cobra.Command{
	Use:   "stats <folder>",
	Short: "Report on file transfer databases",
	Long: "Analyze the SQLite databases (*.sqlite, *.db) written by the file transfer tool.\n\n" +
		"For each database the command counts migrated and pending files, files with a " +
		"CMX document id, and pending files in error, broken down by error message. " +
		"Databases that cannot be read are reported and skipped.",
	Example: `  # Statistics of one folder
  cmxbatch stats /data/transfer

  # Include subfolders and export a CSV for the FS01 file system
  cmxbatch stats /data/transfer --recursive --export fs01.csv --filesystem FS01`,
	Args:    usageArgs(cobra.ExactArgs(1)),
	PreRunE: validateStats,
	RunE:    runStats,
}

func init() {
	StatsCmd.Flags().BoolVarP(&statsRecursive, "recursive", "r", false,
		"Also analyze databases in subfolders")
	StatsCmd.Flags().StringVar(&statsExport, "export", "",
		"Write the statistics to this CSV file")
	StatsCmd.Flags().StringVar(&statsFileSystem, "filesystem", "",
		"File system name written in the export (default: folder name)")
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &cmdutil.UsageError{Err: err}
		}
		return nil
	}
}

func validateStats(cmd *cobra.Command, args []string) error {
	if statsFileSystem != "" && statsExport == "" {
		return cmdutil.Usagef("--filesystem requires --export")
	}

	// All validation passed - errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := slog.Default()

	root, err := cmdutil.ResolvePath(args[0])
	if err != nil {
		return err
	}

	folders, err := transfer.Discover(root, statsRecursive)
	if err != nil {
		return fmt.Errorf("failed to discover databases; %w", err)
	}
	if len(folders) == 0 {
		return fmt.Errorf("%w in %s", ErrNoDatabases, root)
	}

	r := transfer.Collect(cmd.Context(), folders, logger)
	transfer.Render(out, r)

	for _, f := range r.Folders {
		for _, path := range f.Failed {
			fmt.Fprintln(out, report.WarningText.Render(report.IconWarning+" skipped "+path))
		}
	}

	if statsExport == "" {
		return nil
	}
	exportPath, err := cmdutil.ResolvePath(statsExport)
	if err != nil {
		return err
	}
	fileSystem := statsFileSystem
	if fileSystem == "" {
		fileSystem = filepath.Base(root)
	}
	if err := transfer.Export(exportPath, fileSystem, r); err != nil {
		return fmt.Errorf("failed to export statistics; %w", err)
	}
	fmt.Fprintln(out, report.MutedText.Render("output: "+exportPath))
	return nil
}
