//go:build conformance

package conformance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mutgate-project/mutgate/pkg/config"
	"github.com/mutgate-project/mutgate/pkg/model"
	"github.com/mutgate-project/mutgate/pkg/mutgate"
)

// initRoot prepares a governed root with the given quota thresholds.
// Passing hard <= 0 keeps the defaults.
func initRoot(t *testing.T, soft, hard int64) string {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	if hard > 0 {
		cfg.Quota = config.QuotaConfig{SoftThreshold: soft, HardLimit: hard}
	}
	if err := config.Save(root, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return root
}

func open(t *testing.T, root string) *mutgate.Governor {
	t.Helper()
	gov, err := mutgate.Open(root, mutgate.Options{})
	if err != nil {
		t.Fatalf("open governor: %v", err)
	}
	t.Cleanup(func() { gov.Close() })
	return gov
}

func request(resource string, op model.Operation, content string) *model.MutationRequest {
	req := &model.MutationRequest{
		ResourceID:  resource,
		Op:          op,
		RequestedBy: "agent-7",
	}
	if op != model.OpDelete {
		req.ProposedContent = []byte(content)
	}
	return req
}

// seedResource creates a resource through the full governed path so the
// ledger stays consistent with the store.
func seedResource(t *testing.T, gov *mutgate.Governor, resource, content string) {
	t.Helper()
	cp, err := gov.RequestMutation(request(resource, model.OpCreate, content), false)
	if err != nil {
		t.Fatalf("seed request %s: %v", resource, err)
	}
	if _, err := gov.Execute(context.Background(), cp.ID); err != nil {
		t.Fatalf("seed execute %s: %v", resource, err)
	}
}

func resourcePath(root, resource string) string {
	return filepath.Join(root, mutgate.StateDirName, "resources", filepath.FromSlash(resource))
}

func readResource(t *testing.T, root, resource string) string {
	t.Helper()
	data, err := os.ReadFile(resourcePath(root, resource))
	if err != nil {
		t.Fatalf("read resource %s: %v", resource, err)
	}
	return string(data)
}

func auditPath(root string) string {
	return filepath.Join(root, mutgate.StateDirName, "audit", "audit.jsonl")
}
