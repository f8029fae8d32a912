package dispatch

import (
	"context"
	"errors"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
)

// OutcomeKind is the result variant of one executed operation.
type OutcomeKind string

const (
	OutcomeOK                 OutcomeKind = "ok"
	OutcomeSchemaError        OutcomeKind = "schema_error"
	OutcomeNormalizationError OutcomeKind = "normalization_error"
	OutcomeConflict           OutcomeKind = "conflict"
	OutcomeNotFound           OutcomeKind = "not_found"
	OutcomeInvalidSlot        OutcomeKind = "invalid_slot"
	OutcomeBackendTimeout     OutcomeKind = "backend_timeout"
	OutcomeBackendUnavailable OutcomeKind = "backend_unavailable"
)

// IsBackendFailure reports whether the kind counts against the backend
// failure budget of a request.
func (k OutcomeKind) IsBackendFailure() bool {
	return k == OutcomeBackendTimeout || k == OutcomeBackendUnavailable
}

// Classify maps an error from validation, normalization or a calendar store
// onto the outcome taxonomy. Unknown errors are treated as the backend being
// unavailable.
func Classify(err error) OutcomeKind {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, registry.ErrSchema),
		errors.Is(err, calendar.ErrEmptyTitle),
		errors.Is(err, calendar.ErrInvalidArgument):
		return OutcomeSchemaError
	case errors.Is(err, timeparse.ErrUnresolvable):
		return OutcomeNormalizationError
	case errors.Is(err, calendar.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, calendar.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, calendar.ErrInvalidSlot):
		return OutcomeInvalidSlot
	case errors.Is(err, calendar.ErrBackendTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return OutcomeBackendTimeout
	default:
		return OutcomeBackendUnavailable
	}
}
