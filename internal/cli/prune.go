package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/mutgate"
)

var (
	pruneDryRun  bool
	pruneKeepMin int
	pruneKeepAge time.Duration
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune backups of terminal checkpoints",
	Long: `Prune backups of terminal checkpoints.

Backups are kept while their checkpoint is still pending or approved,
while they are younger than --keep-age, and while they are among the
--keep-min most recent backups.

Examples:
  mutgate prune --dry-run
  mutgate prune --keep-min 5 --keep-age 12h`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gov := requireGovernor()
		defer gov.Close()

		plan, err := gov.GC(mutgate.GCOptions{
			KeepMinBackups: pruneKeepMin,
			KeepMinAge:     pruneKeepAge,
			DryRun:         pruneDryRun,
		})
		if err != nil {
			fmtErr("prune: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(plan)
			return
		}
		verb := "Pruned"
		if pruneDryRun {
			verb = "Would prune"
		}
		fmt.Printf("%s %d backup(s), keeping %d\n", verb, len(plan.ToDelete), len(plan.Protected))
		if pruneDryRun && len(plan.ToDelete) > 0 {
			fmt.Printf("  run without --dry-run to delete, plan %s\n", color.Dim(plan.PlanID))
		}
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "plan only, delete nothing")
	pruneCmd.Flags().IntVar(&pruneKeepMin, "keep-min", 10, "always keep this many recent backups")
	pruneCmd.Flags().DurationVar(&pruneKeepAge, "keep-age", 24*time.Hour, "always keep backups younger than this")
	rootCmd.AddCommand(pruneCmd)
}
