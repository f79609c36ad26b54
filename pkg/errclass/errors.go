package errclass

import "fmt"

// GovError is a stable, machine-readable error class.
type GovError struct {
	Code    string
	Message string
}

func (e *GovError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GovError) Is(target error) bool {
	t, ok := target.(*GovError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new GovError with the same Code but a specific message.
func (e *GovError) WithMessage(msg string) *GovError {
	return &GovError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new GovError with a formatted message.
func (e *GovError) WithMessagef(format string, args ...any) *GovError {
	return &GovError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes for v0.x (13 total).
var (
	ErrQuotaExceeded       = &GovError{Code: "E_QUOTA_EXCEEDED"}
	ErrInvalidTransition   = &GovError{Code: "E_INVALID_TRANSITION"}
	ErrConflictingResource = &GovError{Code: "E_CONFLICTING_RESOURCE"}
	ErrBackupFailure       = &GovError{Code: "E_BACKUP_FAILURE"}
	ErrPartialRollback     = &GovError{Code: "E_PARTIAL_ROLLBACK"}
	ErrNotFound            = &GovError{Code: "E_NOT_FOUND"}
	ErrNotPending          = &GovError{Code: "E_NOT_PENDING"}
	ErrNotApproved         = &GovError{Code: "E_NOT_APPROVED"}
	ErrApprovalRequired    = &GovError{Code: "E_APPROVAL_REQUIRED"}
	ErrAuditChainBroken    = &GovError{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrLedgerClosed        = &GovError{Code: "E_LEDGER_CLOSED"}
	ErrNameInvalid         = &GovError{Code: "E_NAME_INVALID"}
	ErrPathEscape          = &GovError{Code: "E_PATH_ESCAPE"}
)
