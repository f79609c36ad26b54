package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/mutgate"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize governance state in the root directory",
	Long: `Initialize governance state in the root directory.

This creates:
  - .mutgate/config.yaml with default quota and backend settings
  - .mutgate/audit/ for the append-only audit ledger
  - .mutgate/backups/ for pre-mutation backups
  - .mutgate/resources/ for governed resource content`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov, err := mutgate.Init(rootDir, mutgate.Options{})
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		defer gov.Close()

		if jsonOutput {
			outputJSON(map[string]any{"root": gov.Root()})
			return
		}
		fmt.Printf("Initialized governance state in %s\n", color.Success(gov.Root()))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
