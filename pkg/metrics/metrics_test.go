package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mutgate-project/mutgate/pkg/metrics"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_Counters(t *testing.T) {
	promReg := prometheus.NewRegistry()
	r := metrics.NewRegistry(promReg)

	r.RecordCheckpointCreated("pre_mutation")
	r.RecordCheckpointCreated("pre_mutation")
	r.RecordCheckpointCreated("token_threshold")
	r.RecordDecision("approved")
	r.RecordExecution("executed", 50*time.Millisecond)
	r.SetQuotaUsed(42)

	count, err := testutil.GatherAndCount(promReg,
		"mutgate_checkpoints_created_total",
		"mutgate_checkpoint_decisions_total",
		"mutgate_executions_total",
		"mutgate_quota_used")
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRegistry_NilIsSafe(t *testing.T) {
	var r *metrics.Registry
	assert.NotPanics(t, func() {
		r.RecordCheckpointCreated("manual")
		r.RecordDecision("rejected")
		r.RecordExecution("rolled_back", time.Second)
		r.SetQuotaUsed(1)
	})
}
