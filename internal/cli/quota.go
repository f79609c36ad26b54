package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show quota usage",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		state := gov.Quota()
		if jsonOutput {
			outputJSON(state)
			return
		}
		fmt.Printf("Used:           %d\n", state.Used)
		fmt.Printf("Soft threshold: %d\n", state.SoftThreshold)
		fmt.Printf("Hard limit:     %d\n", state.HardLimit)
		if state.Used >= state.SoftThreshold {
			fmt.Println(color.Warning("Soft threshold reached; admissions may be gated."))
		}
	},
}

var quotaConsumeCmd = &cobra.Command{
	Use:   "consume <amount>",
	Short: "Record resource usage against the quota",
	Long: `Record resource usage against the quota.

Crossing the soft threshold creates a checkpoint that blocks new
mutation requests until it is approved or rejected.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmtErr("amount must be an integer: %v", err)
			os.Exit(1)
		}

		gov := requireGovernor()
		defer gov.Close()

		res, err := gov.ConsumeUsage(amount)
		if err != nil {
			fmtErr("consume: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("Used: %d\n", res.Used)
		if res.Checkpoint != nil {
			fmt.Printf("%s checkpoint %s created; admissions are gated until it is decided\n",
				color.Warning("Threshold crossed:"), color.CheckpointID(res.Checkpoint.ID.String()))
		}
	},
}

var quotaResetBy string

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero the quota counter",
	Long: `Zero the quota counter.

The reset is recorded in the audit ledger. A pending threshold
checkpoint still gates new requests until it is decided.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		prior, err := gov.ResetUsage(quotaResetBy)
		if err != nil {
			fmtErr("reset: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(map[string]int64{"prior_usage": prior})
			return
		}
		fmt.Printf("Quota reset (was %d)\n", prior)
	},
}

func init() {
	quotaResetCmd.Flags().StringVar(&quotaResetBy, "by", "", "principal performing the reset")
	quotaResetCmd.MarkFlagRequired("by")
	quotaCmd.AddCommand(quotaConsumeCmd, quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}
