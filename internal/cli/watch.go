package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/mutgate-project/mutgate/pkg/mutgate"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the audit ledger and surface pending checkpoints",
	Long: `Follow the audit ledger and surface pending checkpoints.

Tails the JSONL audit file and prints each new entry as it lands.
Entries that open a pending checkpoint are highlighted so a reviewer
can approve or reject them. Only the jsonl ledger backend can be
watched. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auditPath := filepath.Join(rootDir, mutgate.StateDirName, "audit", "audit.jsonl")
		if _, err := os.Stat(auditPath); err != nil {
			fmtErr("watch: no jsonl ledger at %s", auditPath)
			os.Exit(1)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			fmtErr("watch: %v", err)
			os.Exit(1)
		}
		defer watcher.Close()

		// Watch the directory: appends rename nothing, but editors and
		// the atomic-write path may replace the file.
		if err := watcher.Add(filepath.Dir(auditPath)); err != nil {
			fmtErr("watch: %v", err)
			os.Exit(1)
		}

		offset, err := tailFrom(auditPath)
		if err != nil {
			fmtErr("watch: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Watching %s\n", color.Dim(auditPath))

		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-sigc:
				return
			case err := <-watcher.Errors:
				fmtErr("watch: %v", err)
				return
			case event := <-watcher.Events:
				if event.Name != auditPath || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				offset, err = printNewEntries(auditPath, offset)
				if err != nil {
					fmtErr("watch: %v", err)
					return
				}
			}
		}
	},
}

// tailFrom returns the current end of the audit file so only entries
// appended after watch started are printed.
func tailFrom(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func printNewEntries(path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	read := offset
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1

		var entry model.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// torn trailing line; re-read it on the next write
			return read - int64(len(line)) - 1, nil
		}
		printWatchEntry(&entry)
	}
	return read, scanner.Err()
}

func printWatchEntry(entry *model.AuditEntry) {
	if jsonOutput {
		outputJSON(entry)
		return
	}
	line := fmt.Sprintf("%4d  %s  %-24s  %s",
		entry.Sequence,
		color.Dim(entry.Timestamp.Format("15:04:05")),
		entry.EventType,
		color.CheckpointID(entry.CheckpointID.String()),
	)
	fmt.Println(line)

	if entry.EventType == model.EventCheckpointCreated {
		if state, ok := entry.Detail["state"].(string); ok && state == string(model.StatePendingApproval) {
			fmt.Println(color.Warningf("      awaiting decision: mutgate approve %s --by <approver>", entry.CheckpointID))
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
