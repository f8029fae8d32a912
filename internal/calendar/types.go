// Package calendar defines the authoritative slot model shared by every
// calendar backend: events keyed by (date, time), the fixed slot catalog,
// the error taxonomy and the Store contract. MemoryStore is the in-process
// backend.
package calendar

import "context"

// Event is a meeting occupying exactly one slot. It has no identity beyond
// its slot key and title.
type Event struct {
	Date  string `json:"date"`
	Time  string `json:"time"`
	Title string `json:"title"`
}

// Entry is a (time, title) pair of a day view.
type Entry struct {
	Time  string `json:"time"`
	Title string `json:"title"`
}

// Day is one date of a week view together with its entries.
type Day struct {
	Date    string  `json:"date"`
	Entries []Entry `json:"entries"`
}

// Store is the contract every calendar backend satisfies. All dates and
// times are canonical (see package timeparse).
//
// Book and Move are atomic check-and-set units per date; readers observe
// either the state before or after a mutation, never an intermediate one.
type Store interface {
	// CheckAvailability returns the catalog slots that are free on date, in
	// catalog order.
	CheckAvailability(ctx context.Context, date string) ([]string, error)

	// Book inserts an event. It fails with a *ConflictError when the slot is
	// already occupied; it never overwrites.
	Book(ctx context.Context, date, slot, title string) (Event, error)

	// Delete removes the event at the exact slot and returns its title.
	Delete(ctx context.Context, date, slot string) (string, error)

	// Move relocates the event at oldSlot to newSlot within date and returns
	// its title. Moving onto the same slot is a no-op success.
	Move(ctx context.Context, date, oldSlot, newSlot string) (string, error)

	// ViewDay returns the events of date sorted by time ascending.
	ViewDay(ctx context.Context, date string) ([]Entry, error)

	// ViewWeek returns, for the Monday-started week containing date, the
	// days that have at least one event, in date order.
	ViewWeek(ctx context.Context, date string) ([]Day, error)
}
