package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
)

// DefaultOperationTimeout bounds a single calendar store call.
const DefaultOperationTimeout = 10 * time.Second

// Outcome is the structured result of one operation together with the
// short deterministic description appended to the transcript.
type Outcome struct {
	Operation string
	// Arguments holds the normalized arguments when normalization succeeded,
	// otherwise the raw ones.
	Arguments map[string]string
	Kind      OutcomeKind
	Text      string
	// Value is the operation's payload on success: []string for
	// check_availability, calendar.Event for book, the title for delete and
	// move, []calendar.Entry for view_day and []calendar.Day for view_week.
	Value any
	Err   error
}

// Executor validates, normalizes and runs operation requests against a
// calendar store. It is shared by the dispatch loop and the direct
// REST and MCP surfaces.
type Executor struct {
	registry   *registry.Registry
	normalizer *timeparse.Normalizer
	store      calendar.Store
	timeout    time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout selects
// DefaultOperationTimeout.
func NewExecutor(reg *registry.Registry, norm *timeparse.Normalizer, store calendar.Store, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &Executor{registry: reg, normalizer: norm, store: store, timeout: timeout}
}

// Registry returns the operation catalog the executor validates against.
func (x *Executor) Registry() *registry.Registry { return x.registry }

// Normalizer returns the time normalizer used for date and time arguments.
func (x *Executor) Normalizer() *timeparse.Normalizer { return x.normalizer }

// Execute runs one operation. It never returns a Go error; every failure is
// reported as an Outcome kind.
func (x *Executor) Execute(ctx context.Context, name string, args map[string]string) Outcome {
	out := Outcome{Operation: name, Arguments: maps.Clone(args)}

	call, err := x.registry.Validate(name, args)
	if err != nil {
		return out.fail(err, "Schema error: "+schemaReason(err)+".")
	}

	norm, err := x.normalize(name, call.Args)
	if err != nil {
		return out.fail(err, fmt.Sprintf("Normalization error: %s. Ask the user to clarify.", err))
	}
	out.Arguments = norm

	opCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	value, text, err := x.run(opCtx, name, norm)
	if err != nil {
		return out.fail(err, failureText(err, norm))
	}
	out.Kind = OutcomeOK
	out.Text = text
	out.Value = value
	return out
}

func (o Outcome) fail(err error, text string) Outcome {
	o.Err = err
	o.Kind = Classify(err)
	o.Text = text
	return o
}

func (x *Executor) normalize(name string, args map[string]string) (map[string]string, error) {
	d, _ := x.registry.Lookup(name)
	out := make(map[string]string, len(args))
	for _, a := range d.Arguments {
		v, ok := args[a.Name]
		if !ok {
			continue
		}
		switch a.Type {
		case registry.TypeDate:
			date, err := x.normalizer.Date(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			v = date
		case registry.TypeTime:
			t, err := x.normalizer.Time(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			v = t
		}
		out[a.Name] = v
	}
	return out, nil
}

func (x *Executor) run(ctx context.Context, name string, a map[string]string) (any, string, error) {
	date := a["date"]
	switch name {
	case registry.CheckAvailability:
		free, err := x.store.CheckAvailability(ctx, date)
		if err != nil {
			return nil, "", err
		}
		if len(free) == 0 {
			return free, fmt.Sprintf("No slots available on %s.", date), nil
		}
		return free, fmt.Sprintf("Available slots on %s: %s.", date, strings.Join(free, ", ")), nil

	case registry.Book:
		ev, err := x.store.Book(ctx, date, a["time"], a["title"])
		if err != nil {
			return nil, "", err
		}
		return ev, fmt.Sprintf("Booked %q on %s at %s.", ev.Title, ev.Date, ev.Time), nil

	case registry.Delete:
		title, err := x.store.Delete(ctx, date, a["time"])
		if err != nil {
			return nil, "", err
		}
		return title, fmt.Sprintf("Deleted %q on %s at %s.", title, date, a["time"]), nil

	case registry.Move:
		title, err := x.store.Move(ctx, date, a["old_time"], a["new_time"])
		if err != nil {
			return nil, "", err
		}
		if a["old_time"] == a["new_time"] {
			return title, fmt.Sprintf("%q on %s is already at %s.", title, date, a["new_time"]), nil
		}
		return title, fmt.Sprintf("Moved %q on %s from %s to %s.", title, date, a["old_time"], a["new_time"]), nil

	case registry.ViewDay:
		entries, err := x.store.ViewDay(ctx, date)
		if err != nil {
			return nil, "", err
		}
		if len(entries) == 0 {
			return entries, fmt.Sprintf("No events on %s.", date), nil
		}
		return entries, fmt.Sprintf("Events on %s: %s.", date, formatEntries(entries)), nil

	case registry.ViewWeek:
		days, err := x.store.ViewWeek(ctx, date)
		if err != nil {
			return nil, "", err
		}
		start, _ := timeparse.WeekStart(date)
		if len(days) == 0 {
			return days, fmt.Sprintf("No events in the week of %s.", start), nil
		}
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = d.Date + ": " + formatEntries(d.Entries)
		}
		return days, fmt.Sprintf("Events in the week of %s: %s.", start, strings.Join(parts, " | ")), nil
	}
	return nil, "", &registry.SchemaError{Operation: name, Reason: "unknown operation"}
}

func formatEntries(entries []calendar.Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s %s", e.Time, e.Title)
	}
	return strings.Join(parts, "; ")
}

func failureText(err error, a map[string]string) string {
	var conflict *calendar.ConflictError
	var invalid *calendar.InvalidSlotError
	switch Classify(err) {
	case OutcomeConflict:
		if errors.As(err, &conflict) {
			if conflict.Occupant != "" {
				return fmt.Sprintf("Conflict: %s on %s is already booked by %q.", conflict.Time, conflict.Date, conflict.Occupant)
			}
			return fmt.Sprintf("Conflict: %s on %s is already booked.", conflict.Time, conflict.Date)
		}
		return "Conflict: the slot is already booked."
	case OutcomeNotFound:
		slot := a["time"]
		if slot == "" {
			slot = a["old_time"]
		}
		return fmt.Sprintf("Not found: no event at %s on %s.", slot, a["date"])
	case OutcomeInvalidSlot:
		if errors.As(err, &invalid) {
			return fmt.Sprintf("Invalid slot: %s is not a bookable time. Bookable times: %s.", invalid.Time, strings.Join(invalid.Slots, ", "))
		}
		return "Invalid slot: the time is not bookable."
	case OutcomeSchemaError:
		return "Schema error: " + err.Error() + "."
	case OutcomeBackendTimeout:
		return "Backend timeout: the calendar did not respond in time."
	default:
		return "Backend unavailable: the calendar could not be reached."
	}
}

func schemaReason(err error) string {
	var se *registry.SchemaError
	if errors.As(err, &se) {
		if se.Argument == "" {
			return fmt.Sprintf("%s (%s)", se.Reason, se.Operation)
		}
		return fmt.Sprintf("argument %q of %s: %s", se.Argument, se.Operation, se.Reason)
	}
	return err.Error()
}
