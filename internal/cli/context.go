package cli

import (
	"fmt"
	"os"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/mutgate"
)

// requireGovernor opens the governed root or exits with an error.
// Callers own the returned governor and must Close it.
func requireGovernor() *mutgate.Governor {
	gov, err := mutgate.Open(rootDir, mutgate.Options{})
	if err != nil {
		fmtErr("%v", err)
		fmt.Fprintf(os.Stderr, "hint: run %s first\n", color.Dim("mutgate init"))
		os.Exit(1)
	}
	return gov
}

func fmtErr(format string, args ...any) {
	prefix := "mutgate: "
	if color.Enabled() {
		prefix = color.Error("mutgate:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
