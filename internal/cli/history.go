package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
)

var (
	historyLimit int
	historyEvent string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit ledger, newest first",
	Long: `Show the audit ledger, newest first.

Examples:
  mutgate history                        # full ledger
  mutgate history -n 10                  # last 10 entries
  mutgate history --event rollback_performed`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		entries, err := gov.History(historyLimit)
		if err != nil {
			fmtErr("history: %v", err)
			os.Exit(1)
		}
		if historyEvent != "" {
			filtered := entries[:0]
			for _, entry := range entries {
				if string(entry.EventType) == historyEvent {
					filtered = append(filtered, entry)
				}
			}
			entries = filtered
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries yet.")
			return
		}
		for _, entry := range entries {
			id := entry.CheckpointID.String()
			if id == "" {
				id = color.Dim("-")
			} else {
				id = color.CheckpointID(id)
			}
			fmt.Printf("%4d  %s  %-24s  %s  %s\n",
				entry.Sequence,
				color.Dim(entry.Timestamp.Format("2006-01-02 15:04:05")),
				entry.EventType,
				id,
				color.Dim(strings.Join(entry.ResourceIDs, ", ")),
			)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "limit number of entries (0 = all)")
	historyCmd.Flags().StringVar(&historyEvent, "event", "", "filter by event type")
	rootCmd.AddCommand(historyCmd)
}
