package calendar

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kalambet/slotbot/internal/timeparse"
)

// DefaultSlots is the slot catalog used when none is configured.
var DefaultSlots = []string{"10:00 AM", "2:00 PM", "4:00 PM"}

// Catalog is the fixed, ordered set of bookable times per day. It is the
// single shared constant consulted by CheckAvailability.
type Catalog struct {
	slots []string
}

// NewCatalog validates and orders the given canonical slot times.
func NewCatalog(slots []string) (Catalog, error) {
	if len(slots) == 0 {
		return Catalog{}, fmt.Errorf("slot catalog must not be empty")
	}
	seen := make(map[string]bool, len(slots))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		canonical, err := timeparse.NormalizeTime(s)
		if err != nil {
			return Catalog{}, fmt.Errorf("slot catalog: %w", err)
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	SortTimes(out)
	return Catalog{slots: out}, nil
}

// ParseCatalog parses a comma-separated slot list such as "10:00 AM,2:00 PM".
func ParseCatalog(list string) (Catalog, error) {
	var slots []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			slots = append(slots, s)
		}
	}
	return NewCatalog(slots)
}

// DefaultCatalog returns the catalog built from DefaultSlots.
func DefaultCatalog() Catalog {
	c, _ := NewCatalog(DefaultSlots)
	return c
}

// Slots returns a copy of the catalog times in ascending order.
func (c Catalog) Slots() []string {
	return slices.Clone(c.slots)
}

// Contains reports whether slot is a bookable time.
func (c Catalog) Contains(slot string) bool {
	return slices.Contains(c.slots, slot)
}

// Free returns the catalog times not present in booked, in catalog order.
func (c Catalog) Free(booked map[string]bool) []string {
	free := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		if !booked[s] {
			free = append(free, s)
		}
	}
	return free
}

func (c Catalog) requireSlot(slot string) error {
	if !c.Contains(slot) {
		return &InvalidSlotError{Time: slot, Slots: c.Slots()}
	}
	return nil
}

// SortTimes orders canonical times chronologically in place.
func SortTimes(times []string) {
	sort.SliceStable(times, func(i, j int) bool {
		return minutes(times[i]) < minutes(times[j])
	})
}

// SortEntries orders entries chronologically in place.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return minutes(entries[i].Time) < minutes(entries[j].Time)
	})
}

func minutes(t string) int {
	m, err := timeparse.Minutes(t)
	if err != nil {
		return -1
	}
	return m
}

// ValidateDate rejects non-canonical dates.
func ValidateDate(date string) error {
	if !timeparse.IsDate(date) {
		return fmt.Errorf("%w: date %q", ErrInvalidArgument, date)
	}
	return nil
}

// ValidateTime rejects non-canonical times.
func ValidateTime(slot string) error {
	if !timeparse.IsTime(slot) {
		return fmt.Errorf("%w: time %q", ErrInvalidArgument, slot)
	}
	return nil
}

// ValidateBooking checks the arguments of a Book call against the catalog.
func (c Catalog) ValidateBooking(date, slot, title string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	if err := ValidateTime(slot); err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	return c.requireSlot(slot)
}

// ValidateMove checks the arguments of a Move call against the catalog. A move
// onto the same slot skips the catalog check so it stays a no-op even for an
// event outside the catalog.
func (c Catalog) ValidateMove(date, oldSlot, newSlot string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	if err := ValidateTime(oldSlot); err != nil {
		return err
	}
	if err := ValidateTime(newSlot); err != nil {
		return err
	}
	if oldSlot == newSlot {
		return nil
	}
	return c.requireSlot(newSlot)
}
