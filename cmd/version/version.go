package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/cmxbatch/internal/version"
)

var versionJSON bool

// VersionCmd displays version and build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version and build information",
	Long: "Display the semantic version, git commit and build date of the cmxbatch binary.\n\n" +
		"The same identity is sent as the User-Agent of every document-store request " +
		"and published with the run metrics.",
	Example: `  # Display version information
  cmxbatch version

  # Machine-readable output
  cmxbatch version --json`,
	Args:    cobra.NoArgs,
	PreRunE: validateVersion,
	RunE:    runVersion,
}

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}

func validateVersion(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.Get()
	if !versionJSON {
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode version; %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
