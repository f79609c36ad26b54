package errclass_test

import (
	"errors"
	"testing"

	"github.com/mutgate-project/mutgate/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovError_Error(t *testing.T) {
	err := errclass.ErrConflictingResource.WithMessage("resource cfg.json has an in-flight checkpoint")
	assert.Equal(t, "E_CONFLICTING_RESOURCE: resource cfg.json has an in-flight checkpoint", err.Error())
}

func TestGovError_ErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "E_QUOTA_EXCEEDED", errclass.ErrQuotaExceeded.Error())
}

func TestGovError_Is(t *testing.T) {
	err := errclass.ErrNotPending.WithMessage("checkpoint already executed")
	require.True(t, errors.Is(err, errclass.ErrNotPending))
	require.False(t, errors.Is(err, errclass.ErrNotApproved))
}

func TestGovError_Wrapped(t *testing.T) {
	inner := errclass.ErrBackupFailure.WithMessagef("capture %s: disk full", "cfg.json")
	wrapped := errors.Join(inner)
	require.True(t, errors.Is(wrapped, errclass.ErrBackupFailure))
}

func TestGovError_Code(t *testing.T) {
	assert.Equal(t, "E_INVALID_TRANSITION", errclass.ErrInvalidTransition.Code)
	assert.Equal(t, "E_PARTIAL_ROLLBACK", errclass.ErrPartialRollback.Code)
}

func TestGovError_AllErrorsDefined(t *testing.T) {
	// All 13 v0.x error classes must exist
	all := []error{
		errclass.ErrQuotaExceeded,
		errclass.ErrInvalidTransition,
		errclass.ErrConflictingResource,
		errclass.ErrBackupFailure,
		errclass.ErrPartialRollback,
		errclass.ErrNotFound,
		errclass.ErrNotPending,
		errclass.ErrNotApproved,
		errclass.ErrApprovalRequired,
		errclass.ErrAuditChainBroken,
		errclass.ErrLedgerClosed,
		errclass.ErrNameInvalid,
		errclass.ErrPathEscape,
	}
	assert.Len(t, all, 13)
}
