package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
)

var (
	jsonOutput bool
	noColor    bool
	rootDir    string

	rootCmd = &cobra.Command{
		Use:   "mutgate",
		Short: "Mutgate - mutation governance and audit core",
		Long: `Mutgate gates agent mutations behind checkpoints and approvals.
Every state change lands in a hash-chained, append-only audit ledger,
every mutation is backed up before it is applied, and resource usage
is tracked against a quota that forces a checkpoint when it runs hot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "governed root directory")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
