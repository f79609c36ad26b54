package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/model"
)

var (
	approveBy    string
	rejectBy     string
	rejectReason string
)

var approveCmd = &cobra.Command{
	Use:   "approve <checkpoint-id>",
	Short: "Approve a pending checkpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		cp, err := gov.Approve(model.CheckpointID(args[0]), approveBy)
		if err != nil {
			fmtErr("approve: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(cp)
			return
		}
		fmt.Printf("Checkpoint %s %s by %s\n",
			color.CheckpointID(cp.ID.String()), color.State(string(cp.State)), cp.ApprovedBy)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <checkpoint-id>",
	Short: "Reject a pending checkpoint",
	Long: `Reject a pending checkpoint.

A rejected checkpoint never mutates anything; no backup is taken and
its resources are released for new requests.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		cp, err := gov.Reject(model.CheckpointID(args[0]), rejectBy, rejectReason)
		if err != nil {
			fmtErr("reject: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(cp)
			return
		}
		fmt.Printf("Checkpoint %s %s", color.CheckpointID(cp.ID.String()), color.State(string(cp.State)))
		if cp.RejectedReason != "" {
			fmt.Printf("  %s", color.Dim(cp.RejectedReason))
		}
		fmt.Println()
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveBy, "by", "", "approving principal (required)")
	approveCmd.MarkFlagRequired("by")
	rejectCmd.Flags().StringVar(&rejectBy, "by", "", "rejecting principal (required)")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the mutation was refused")
	rejectCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}
