package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/slotbot/internal/timeparse"
)

// MemoryStore keeps the calendar in process memory. Each date bucket is
// guarded by its own lock from DateLocks; mu only protects the outer map.
type MemoryStore struct {
	catalog Catalog
	locks   DateLocks

	mu    sync.Mutex
	dates map[string]map[string]string // date -> time -> title
}

// NewMemoryStore creates an empty in-memory calendar over catalog.
func NewMemoryStore(catalog Catalog) *MemoryStore {
	return &MemoryStore{
		catalog: catalog,
		dates:   make(map[string]map[string]string),
	}
}

// Catalog returns the slot catalog the store books against.
func (s *MemoryStore) Catalog() Catalog { return s.catalog }

func (s *MemoryStore) bucket(date string, create bool) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.dates[date]
	if !ok && create {
		b = make(map[string]string)
		s.dates[date] = b
	}
	return b
}

func (s *MemoryStore) dropIfEmpty(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.dates[date]; ok && len(b) == 0 {
		delete(s.dates, date)
	}
}

// snapshot copies a bucket; the caller holds the date lock.
func snapshot(b map[string]string) []Entry {
	entries := make([]Entry, 0, len(b))
	for t, title := range b {
		entries = append(entries, Entry{Time: t, Title: title})
	}
	SortEntries(entries)
	return entries
}

func (s *MemoryStore) CheckAvailability(ctx context.Context, date string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(date)
	defer unlock()

	booked := make(map[string]bool)
	for t := range s.bucket(date, false) {
		booked[t] = true
	}
	return s.catalog.Free(booked), nil
}

func (s *MemoryStore) Book(ctx context.Context, date, slot, title string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := s.catalog.ValidateBooking(date, slot, title); err != nil {
		return Event{}, err
	}
	title = strings.TrimSpace(title)

	unlock := s.locks.Lock(date)
	defer unlock()

	b := s.bucket(date, true)
	if occupant, ok := b[slot]; ok {
		return Event{}, &ConflictError{Date: date, Time: slot, Occupant: occupant}
	}
	b[slot] = title
	return Event{Date: date, Time: slot, Title: title}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, date, slot string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateDate(date); err != nil {
		return "", err
	}
	if err := ValidateTime(slot); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(date)
	defer unlock()

	b := s.bucket(date, false)
	title, ok := b[slot]
	if !ok {
		return "", ErrNotFound
	}
	delete(b, slot)
	s.dropIfEmpty(date)
	return title, nil
}

func (s *MemoryStore) Move(ctx context.Context, date, oldSlot, newSlot string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.catalog.ValidateMove(date, oldSlot, newSlot); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(date)
	defer unlock()

	b := s.bucket(date, false)
	title, ok := b[oldSlot]
	if !ok {
		return "", ErrNotFound
	}
	if oldSlot == newSlot {
		return title, nil
	}
	if occupant, taken := b[newSlot]; taken {
		return "", &ConflictError{Date: date, Time: newSlot, Occupant: occupant}
	}
	delete(b, oldSlot)
	b[newSlot] = title
	return title, nil
}

func (s *MemoryStore) ViewDay(ctx context.Context, date string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(date)
	defer unlock()
	return snapshot(s.bucket(date, false)), nil
}

func (s *MemoryStore) ViewWeek(ctx context.Context, date string) ([]Day, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dates, err := timeparse.WeekDates(date)
	if err != nil {
		return nil, ErrInvalidArgument
	}
	var days []Day
	for _, d := range dates {
		entries, err := s.ViewDay(ctx, d)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		days = append(days, Day{Date: d, Entries: entries})
	}
	return days, nil
}

// Events returns every stored event ordered by date then time.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	dates := make([]string, 0, len(s.dates))
	for d := range s.dates {
		dates = append(dates, d)
	}
	s.mu.Unlock()
	sort.Strings(dates)

	var out []Event
	for _, d := range dates {
		unlock := s.locks.RLock(d)
		for _, e := range snapshot(s.bucket(d, false)) {
			out = append(out, Event{Date: d, Time: e.Time, Title: e.Title})
		}
		unlock()
	}
	return out
}
