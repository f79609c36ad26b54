package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/model"
)

var executeCmd = &cobra.Command{
	Use:   "execute <checkpoint-id>",
	Short: "Execute the mutation behind an approved checkpoint",
	Long: `Execute the mutation behind an approved checkpoint.

Every affected resource is backed up before the first write. On
failure the mutation is rolled back from those backups; resources that
could not be restored are reported and the command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		result, err := gov.Execute(context.Background(), model.CheckpointID(args[0]))
		if err != nil && result == nil {
			fmtErr("execute: %v", err)
			os.Exit(1)
		}

		failed := err != nil || result.State == model.StateRolledBack

		if jsonOutput {
			outputJSON(result)
			if failed {
				os.Exit(1)
			}
			return
		}

		fmt.Printf("Checkpoint %s %s\n",
			color.CheckpointID(result.CheckpointID.String()), color.State(string(result.State)))
		if result.State == model.StateRolledBack {
			fmt.Printf("  cause: %s\n", result.Cause)
			if len(result.Restored) > 0 {
				fmt.Printf("  restored: %s\n", strings.Join(result.Restored, ", "))
			}
			if len(result.Unrestored) > 0 {
				fmt.Printf("  %s %s\n", color.Error("NOT RESTORED:"), strings.Join(result.Unrestored, ", "))
			}
		}
		if err != nil {
			fmtErr("execute: %v", err)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(executeCmd)
}
