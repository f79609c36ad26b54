package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [<checkpoint-id>]",
	Short: "Show checkpoint status",
	Long: `Show checkpoint status.

Without an argument, lists all checkpoints ordered by creation time.

Examples:
  mutgate status                       # list all checkpoints
  mutgate status 1708300800000-a3f7c1b2`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		if len(args) == 1 {
			cp, err := gov.GetStatus(model.CheckpointID(args[0]))
			if err != nil {
				fmtErr("status: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(cp)
				return
			}
			printCheckpoint(cp)
			return
		}

		all := gov.List()
		if jsonOutput {
			outputJSON(all)
			return
		}
		if len(all) == 0 {
			fmt.Println("No checkpoints yet.")
			return
		}
		for _, cp := range all {
			resources := strings.Join(cp.AffectedResources, ", ")
			if resources == "" {
				resources = color.Dim("(no resources)")
			}
			fmt.Printf("%s  %s  %-16s  %s\n",
				color.CheckpointID(cp.ID.String()),
				color.Dim(cp.CreatedAt.Format("2006-01-02 15:04")),
				color.State(string(cp.State)),
				resources,
			)
		}
	},
}

func printCheckpoint(cp *model.Checkpoint) {
	fmt.Printf("Checkpoint: %s\n", color.CheckpointID(cp.ID.String()))
	fmt.Printf("  Action:    %s\n", cp.Action)
	fmt.Printf("  State:     %s\n", color.State(string(cp.State)))
	fmt.Printf("  Created:   %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(cp.AffectedResources) > 0 {
		fmt.Printf("  Resources: %s\n", strings.Join(cp.AffectedResources, ", "))
	}
	if cp.ApprovedBy != "" {
		fmt.Printf("  Approved:  by %s at %s\n", cp.ApprovedBy, cp.ApprovedAt.Format("2006-01-02 15:04:05"))
	}
	if cp.RejectedReason != "" {
		fmt.Printf("  Rejected:  %s\n", cp.RejectedReason)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
