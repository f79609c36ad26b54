package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/model"
)

var (
	requestOp          string
	requestBy          string
	requestDesc        string
	requestContentFile string
	requestAutoApprove bool
)

var requestCmd = &cobra.Command{
	Use:   "request <resource-id>",
	Short: "Request a mutation and create its checkpoint",
	Long: `Request a mutation and create its checkpoint.

The proposed content is read from --content-file, or from stdin when
the flag is omitted. Delete operations carry no content.

Examples:
  mutgate request config/app.yaml --op update --by agent-1 --content-file new.yaml
  mutgate request tmp/scratch.txt --op delete --by agent-1
  echo "v2" | mutgate request cfg.json --op update --by agent-1 --auto-approve`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := &model.MutationRequest{
			ResourceID:  args[0],
			Op:          model.Operation(requestOp),
			RequestedBy: requestBy,
			Description: requestDesc,
		}

		if req.Op != model.OpDelete {
			content, err := readContent()
			if err != nil {
				fmtErr("read content: %v", err)
				os.Exit(1)
			}
			req.ProposedContent = content
		}

		gov := requireGovernor()
		defer gov.Close()

		cp, err := gov.RequestMutation(req, !requestAutoApprove)
		if err != nil {
			fmtErr("request: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(cp)
			return
		}
		fmt.Printf("Checkpoint %s  %s\n", color.CheckpointID(cp.ID.String()), color.State(string(cp.State)))
		if cp.State == model.StatePendingApproval {
			fmt.Printf("  approve with: %s\n", color.Dim("mutgate approve "+cp.ID.String()+" --by <approver>"))
		}
	},
}

func readContent() ([]byte, error) {
	if requestContentFile != "" {
		return os.ReadFile(requestContentFile)
	}
	return io.ReadAll(os.Stdin)
}

func init() {
	requestCmd.Flags().StringVar(&requestOp, "op", "update", "operation: create, update or delete")
	requestCmd.Flags().StringVar(&requestBy, "by", "", "requesting principal (required)")
	requestCmd.Flags().StringVar(&requestDesc, "desc", "", "human-readable description")
	requestCmd.Flags().StringVar(&requestContentFile, "content-file", "", "file holding the proposed content")
	requestCmd.Flags().BoolVar(&requestAutoApprove, "auto-approve", false, "create the checkpoint already approved")
	requestCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(requestCmd)
}
