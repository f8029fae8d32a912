// Package gcal stores the calendar in Google Calendar. Each booked slot is a
// one-hour event whose start, rendered in the configured zone, is the slot
// time. Check-and-set sequences are serialized per date within the process.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	calendarv3 "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/timeparse"
)

const (
	DefaultCalendarID = "primary"
	DefaultTimeout    = 5 * time.Second

	eventDuration = time.Hour
)

// Options configures a Store.
type Options struct {
	CalendarID string
	Location   *time.Location
	Timeout    time.Duration
	Catalog    calendar.Catalog
}

func (o *Options) defaults() {
	if o.CalendarID == "" {
		o.CalendarID = DefaultCalendarID
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if len(o.Catalog.Slots()) == 0 {
		o.Catalog = calendar.DefaultCatalog()
	}
}

// Store is the Google Calendar backend.
type Store struct {
	svc        *calendarv3.Service
	calendarID string
	loc        *time.Location
	timeout    time.Duration
	catalog    calendar.Catalog
	locks      calendar.DateLocks
}

// New creates a Store authenticated with service-account credentials JSON.
func New(ctx context.Context, credentialsJSON []byte, opts Options) (*Store, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, calendarv3.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parsing Google credentials: %w", err)
	}
	svc, err := calendarv3.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating Calendar service: %w", err)
	}
	return NewWithService(svc, opts), nil
}

// NewWithService wraps an existing Calendar service.
func NewWithService(svc *calendarv3.Service, opts Options) *Store {
	opts.defaults()
	return &Store{
		svc:        svc,
		calendarID: opts.CalendarID,
		loc:        opts.Location,
		timeout:    opts.Timeout,
		catalog:    opts.Catalog,
	}
}

// Catalog returns the slot catalog the store books against.
func (s *Store) Catalog() calendar.Catalog { return s.catalog }

type remoteEvent struct {
	id    string
	date  string
	time  string
	title string
}

// mapErr translates a Calendar API failure into the calendar error taxonomy.
func mapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, calendar.ErrBackendTimeout, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w: %v", op, calendar.ErrBackendTimeout, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, calendar.ErrBackendUnavailable, err)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}

// list returns the timed events starting in [from, to), in start order.
func (s *Store) list(ctx context.Context, from, to time.Time) ([]remoteEvent, error) {
	call := s.svc.Events.List(s.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	var out []remoteEvent
	err := call.Pages(ctx, func(page *calendarv3.Events) error {
		for _, item := range page.Items {
			if item.Start == nil || item.Start.DateTime == "" || item.Status == "cancelled" {
				continue // all-day or cancelled
			}
			start, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				continue
			}
			start = start.In(s.loc)
			if start.Before(from) || !start.Before(to) {
				continue
			}
			out = append(out, remoteEvent{
				id:    item.Id,
				date:  start.Format(timeparse.DateLayout),
				time:  start.Format(timeparse.TimeLayout),
				title: item.Summary,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) dayBounds(date string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(timeparse.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date %q", calendar.ErrInvalidArgument, date)
	}
	return start, start.AddDate(0, 0, 1), nil
}

func (s *Store) day(ctx context.Context, date string) ([]remoteEvent, error) {
	from, to, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, from, to)
}

func find(events []remoteEvent, slot string) (remoteEvent, bool) {
	for _, e := range events {
		if e.time == slot {
			return e, true
		}
	}
	return remoteEvent{}, false
}

func (s *Store) eventTimes(date, slot string) (*calendarv3.EventDateTime, *calendarv3.EventDateTime, error) {
	start, err := timeparse.At(date, slot, s.loc)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
	}
	zone := s.loc.String()
	return &calendarv3.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: zone},
		&calendarv3.EventDateTime{DateTime: start.Add(eventDuration).Format(time.RFC3339), TimeZone: zone},
		nil
}

func (s *Store) CheckAvailability(ctx context.Context, date string) ([]string, error) {
	entries, err := s.ViewDay(ctx, date)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(entries))
	for _, e := range entries {
		booked[e.Time] = true
	}
	return s.catalog.Free(booked), nil
}

func (s *Store) Book(ctx context.Context, date, slot, title string) (calendar.Event, error) {
	if err := s.catalog.ValidateBooking(date, slot, title); err != nil {
		return calendar.Event{}, err
	}
	title = strings.TrimSpace(title)
	start, end, err := s.eventTimes(date, slot)
	if err != nil {
		return calendar.Event{}, err
	}

	unlock := s.locks.Lock(date)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.day(ctx, date)
	if err != nil {
		return calendar.Event{}, mapErr("book", err)
	}
	if e, taken := find(events, slot); taken {
		return calendar.Event{}, &calendar.ConflictError{Date: date, Time: slot, Occupant: e.title}
	}

	ev := &calendarv3.Event{Summary: title, Start: start, End: end}
	if _, err := s.svc.Events.Insert(s.calendarID, ev).Context(ctx).Do(); err != nil {
		return calendar.Event{}, mapErr("book", err)
	}
	return calendar.Event{Date: date, Time: slot, Title: title}, nil
}

func (s *Store) Delete(ctx context.Context, date, slot string) (string, error) {
	if err := calendar.ValidateDate(date); err != nil {
		return "", err
	}
	if err := calendar.ValidateTime(slot); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(date)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.day(ctx, date)
	if err != nil {
		return "", mapErr("delete", err)
	}
	e, ok := find(events, slot)
	if !ok {
		return "", calendar.ErrNotFound
	}
	if err := s.svc.Events.Delete(s.calendarID, e.id).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return "", calendar.ErrNotFound
		}
		return "", mapErr("delete", err)
	}
	return e.title, nil
}

func (s *Store) Move(ctx context.Context, date, oldSlot, newSlot string) (string, error) {
	if err := s.catalog.ValidateMove(date, oldSlot, newSlot); err != nil {
		return "", err
	}
	start, end, err := s.eventTimes(date, newSlot)
	if err != nil {
		return "", err
	}

	unlock := s.locks.Lock(date)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.day(ctx, date)
	if err != nil {
		return "", mapErr("move", err)
	}
	src, ok := find(events, oldSlot)
	if !ok {
		return "", calendar.ErrNotFound
	}
	if oldSlot == newSlot {
		return src.title, nil
	}
	if occupant, taken := find(events, newSlot); taken {
		return "", &calendar.ConflictError{Date: date, Time: newSlot, Occupant: occupant.title}
	}

	patch := &calendarv3.Event{Start: start, End: end}
	if _, err := s.svc.Events.Patch(s.calendarID, src.id, patch).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return "", calendar.ErrNotFound
		}
		return "", mapErr("move", err)
	}
	return src.title, nil
}

func (s *Store) ViewDay(ctx context.Context, date string) ([]calendar.Entry, error) {
	if err := calendar.ValidateDate(date); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(date)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.day(ctx, date)
	if err != nil {
		return nil, mapErr("view_day", err)
	}
	entries := make([]calendar.Entry, 0, len(events))
	for _, e := range events {
		entries = append(entries, calendar.Entry{Time: e.time, Title: e.title})
	}
	calendar.SortEntries(entries)
	return entries, nil
}

func (s *Store) ViewWeek(ctx context.Context, date string) ([]calendar.Day, error) {
	dates, err := timeparse.WeekDates(date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", calendar.ErrInvalidArgument, date)
	}
	from, _, err := s.dayBounds(dates[0])
	if err != nil {
		return nil, err
	}
	_, to, err := s.dayBounds(dates[6])
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.list(ctx, from, to)
	if err != nil {
		return nil, mapErr("view_week", err)
	}

	byDate := make(map[string][]calendar.Entry)
	for _, e := range events {
		byDate[e.date] = append(byDate[e.date], calendar.Entry{Time: e.time, Title: e.title})
	}
	var days []calendar.Day
	for _, d := range dates {
		entries, ok := byDate[d]
		if !ok {
			continue
		}
		calendar.SortEntries(entries)
		days = append(days, calendar.Day{Date: d, Entries: entries})
	}
	return days, nil
}
