package room

import (
	"context"
	"errors"

	"github.com/gosuda/temsim/internal/fault"
)

var (
	ErrInvalidRoom        = errors.New("unknown room")
	ErrInvalidRole        = errors.New("role not available to this participant")
	ErrDuplicateChecklist = errors.New("checklist already used in this room")
	ErrOutOfPhase         = errors.New("action not allowed in the current phase")
	ErrUnknownTarget      = errors.New("unknown target")
	ErrClosed             = errors.New("room closed")
	ErrInvalidAction      = errors.New("malformed action")
)

// Reason codes returned to callers.
const (
	CodeOK                 = "ok"
	CodeInvalidRoom        = "invalid_room"
	CodeInvalidRole        = "invalid_role"
	CodeDuplicateChecklist = "duplicate_checklist"
	CodeOutOfPhase         = "out_of_phase"
	CodeUnknownTarget      = "unknown_target"
	CodeClosed             = "room_closed"
	CodeInvalidAction      = "invalid_action"
	CodeTimeout            = "timeout"
	CodeInternal           = "internal"
)

// Code maps an action error to its reason code.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidRoom):
		return CodeInvalidRoom
	case errors.Is(err, ErrInvalidRole):
		return CodeInvalidRole
	case errors.Is(err, ErrDuplicateChecklist):
		return CodeDuplicateChecklist
	case errors.Is(err, ErrOutOfPhase), errors.Is(err, fault.ErrOutOfPhase), errors.Is(err, fault.ErrWrongChecklist):
		return CodeOutOfPhase
	case errors.Is(err, ErrUnknownTarget), errors.Is(err, fault.ErrUnknownItem):
		return CodeUnknownTarget
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrInvalidAction):
		return CodeInvalidAction
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
