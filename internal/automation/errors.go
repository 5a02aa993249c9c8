package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrHandlerTimeout is recorded when an action handler does not finish
	// within the configured timeout.
	ErrHandlerTimeout = errors.New("action handler timed out")

	ErrApprovalNotFound = errors.New("approval request not found")
	ErrApprovalExpired  = errors.New("approval request expired")
	ErrApprovalResolved = errors.New("approval request already resolved")
	ErrEngineClosed     = errors.New("automation engine closed")
)

// UnknownActionError is returned for an action name outside the closed set
// of action kinds.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}
