package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
)

var checkpointBy string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create a manual checkpoint",
	Long: `Create a manual checkpoint.

A manual checkpoint gates no resource; it records a deliberate pause
point that a human must approve or reject.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		cp, err := gov.RequestCheckpoint(checkpointBy)
		if err != nil {
			fmtErr("checkpoint: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(cp)
			return
		}
		fmt.Printf("Checkpoint %s  %s\n", color.CheckpointID(cp.ID.String()), color.State(string(cp.State)))
	},
}

func init() {
	checkpointCmd.Flags().StringVar(&checkpointBy, "by", "", "requesting principal (required)")
	checkpointCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(checkpointCmd)
}
