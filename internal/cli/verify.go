package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit ledger hash chain",
	Long: `Verify the audit ledger hash chain.

Replays every entry and checks that sequences are gap-free and each
record hash links to its predecessor. Exits non-zero on any break.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		n, err := gov.VerifyAudit()
		if err != nil {
			if jsonOutput {
				outputJSON(map[string]any{"ok": false, "error": err.Error()})
			} else {
				fmt.Printf("%s %v\n", color.Error("TAMPER DETECTED:"), err)
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"ok": true, "entries": n})
			return
		}
		fmt.Printf("%s %d entries verified\n", color.Success("OK"), n)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
