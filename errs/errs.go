// Package errs holds the error taxonomy shared by the funding and dispute engines.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the coarse category of a failure
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameters
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindDuplicateAction
	KindInsufficientPrivilege
	KindTransferFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvalidState:
		return "InvalidState"
	case KindDuplicateAction:
		return "DuplicateAction"
	case KindInsufficientPrivilege:
		return "InsufficientPrivilege"
	case KindTransferFailure:
		return "TransferFailure"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidParameters = newError(KindInvalidParameters, "InvalidParameters", "invalid parameters")
	ErrInvalidAmount     = newError(KindInvalidParameters, "InvalidAmount", "invalid amount")
	ErrInvalidChoice     = newError(KindInvalidParameters, "InvalidChoice", "invalid choice")

	ErrProjectNotFound  = newError(KindNotFound, "ProjectNotFound", "project not found")
	ErrInvalidMilestone = newError(KindNotFound, "InvalidMilestone", "invalid milestone")
	ErrDisputeNotFound  = newError(KindNotFound, "DisputeNotFound", "dispute not found")

	ErrUnauthorized            = newError(KindUnauthorized, "Unauthorized", "caller is not the project owner")
	ErrSelfValidationForbidden = newError(KindUnauthorized, "SelfValidationForbidden", "project owner cannot validate own milestone")

	ErrProjectInactive      = newError(KindInvalidState, "ProjectInactive", "project is not active")
	ErrAlreadySubmitted     = newError(KindInvalidState, "AlreadySubmitted", "milestone already submitted")
	ErrNotSubmitted         = newError(KindInvalidState, "NotSubmitted", "milestone is not awaiting validation")
	ErrValidationWindowOpen = newError(KindInvalidState, "ValidationWindowOpen", "milestone validation window still open")
	ErrRefundUnavailable    = newError(KindInvalidState, "RefundUnavailable", "refunds are not available for this project")
	ErrNoDonationFound      = newError(KindInvalidState, "NoDonationFound", "no donation found")
	ErrVotingClosed         = newError(KindInvalidState, "VotingClosed", "voting is closed")
	ErrVotingOpen           = newError(KindInvalidState, "VotingOpen", "voting period has not ended")
	ErrDisputeNotActive     = newError(KindInvalidState, "DisputeNotActive", "dispute is not active")

	ErrDuplicateVote = newError(KindDuplicateAction, "DuplicateVote", "already voted")

	ErrInsufficientReputation = newError(KindInsufficientPrivilege, "InsufficientReputation", "insufficient reputation")

	ErrTransferFailure = newError(KindTransferFailure, "TransferFailure", "transfer failed")
)

// Wrap returns a copy of sentinel that carries cause, keeping sentinel's kind and code
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: sentinel.Msg, Err: cause}
}

// Detail returns a copy of sentinel with a formatted suffix on its message
func Detail(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind: sentinel.Kind,
		Code: sentinel.Code,
		Msg:  sentinel.Msg + ": " + fmt.Sprintf(format, args...),
	}
}

// KindOf classifies err; unclassified errors are KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of a classified error or "" otherwise
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
