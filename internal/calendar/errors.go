package calendar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("slot already booked")

	// ErrNotFound is returned when no event exists at the referenced slot.
	ErrNotFound = errors.New("no event at slot")

	// ErrInvalidSlot is matched by every *InvalidSlotError.
	ErrInvalidSlot = errors.New("time is not a bookable slot")

	// ErrEmptyTitle is returned when booking without a title.
	ErrEmptyTitle = errors.New("title must not be empty")

	// ErrInvalidArgument is returned when a date or time is not canonical.
	ErrInvalidArgument = errors.New("malformed date or time")

	// ErrBackendTimeout is returned when the persistence layer did not answer
	// within its bound.
	ErrBackendTimeout = errors.New("calendar backend timed out")

	// ErrBackendUnavailable is returned when the persistence layer failed.
	ErrBackendUnavailable = errors.New("calendar backend unavailable")
)

// ConflictError reports the occupied slot and, where known, its occupant.
type ConflictError struct {
	Date     string
	Time     string
	Occupant string
}

func (e *ConflictError) Error() string {
	if e.Occupant == "" {
		return fmt.Sprintf("%s at %s on %s", ErrConflict, e.Time, e.Date)
	}
	return fmt.Sprintf("%s at %s on %s by %q", ErrConflict, e.Time, e.Date, e.Occupant)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidSlotError reports a destination time outside the slot catalog.
type InvalidSlotError struct {
	Time  string
	Slots []string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("%s: %s (slots: %s)", ErrInvalidSlot, e.Time, strings.Join(e.Slots, ", "))
}

func (e *InvalidSlotError) Unwrap() error { return ErrInvalidSlot }
