package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/timeparse"
)

// CalendarStore is the SQLite calendar backend. Every check-and-set runs in
// one transaction on the store's single connection, so mutations are atomic
// and readers see either the state before or after them.
type CalendarStore struct {
	db      *sql.DB
	catalog calendar.Catalog
}

// Calendar returns the calendar backend over s's database.
func (s *Store) Calendar(catalog calendar.Catalog) *CalendarStore {
	return &CalendarStore{db: s.db, catalog: catalog}
}

// backendErr maps database failures onto the calendar error taxonomy.
func backendErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, calendar.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, calendar.ErrBackendUnavailable, err)
}

func (c *CalendarStore) occupant(ctx context.Context, tx *sql.Tx, date, slot string) (string, bool, error) {
	var title string
	err := tx.QueryRowContext(ctx, `SELECT title FROM events WHERE date = ? AND time = ?`, date, slot).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return title, true, nil
}

// inTx runs fn in a transaction, committing when fn returns nil. Errors from
// fn pass through unchanged; database errors are mapped by backendErr.
func (c *CalendarStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return backendErr(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return backendErr(op, err)
	}
	return nil
}

func (c *CalendarStore) CheckAvailability(ctx context.Context, date string) ([]string, error) {
	if err := calendar.ValidateDate(date); err != nil {
		return nil, err
	}
	entries, err := c.ViewDay(ctx, date)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(entries))
	for _, e := range entries {
		booked[e.Time] = true
	}
	return c.catalog.Free(booked), nil
}

func (c *CalendarStore) Book(ctx context.Context, date, slot, title string) (calendar.Event, error) {
	if err := c.catalog.ValidateBooking(date, slot, title); err != nil {
		return calendar.Event{}, err
	}
	ev := calendar.Event{Date: date, Time: slot, Title: strings.TrimSpace(title)}
	minute, _ := timeparse.Minutes(slot)

	err := c.inTx(ctx, "book", func(tx *sql.Tx) error {
		occupant, taken, err := c.occupant(ctx, tx, date, slot)
		if err != nil {
			return backendErr("book", err)
		}
		if taken {
			return &calendar.ConflictError{Date: date, Time: slot, Occupant: occupant}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (date, time, minute, title, created_at) VALUES (?, ?, ?, ?, ?)`,
			date, slot, minute, ev.Title, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return backendErr("book", err)
		}
		return nil
	})
	if err != nil {
		return calendar.Event{}, err
	}
	return ev, nil
}

func (c *CalendarStore) Delete(ctx context.Context, date, slot string) (string, error) {
	if err := calendar.ValidateDate(date); err != nil {
		return "", err
	}
	if err := calendar.ValidateTime(slot); err != nil {
		return "", err
	}
	var title string
	err := c.inTx(ctx, "delete", func(tx *sql.Tx) error {
		t, ok, err := c.occupant(ctx, tx, date, slot)
		if err != nil {
			return backendErr("delete", err)
		}
		if !ok {
			return calendar.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE date = ? AND time = ?`, date, slot); err != nil {
			return backendErr("delete", err)
		}
		title = t
		return nil
	})
	return title, err
}

func (c *CalendarStore) Move(ctx context.Context, date, oldSlot, newSlot string) (string, error) {
	if err := c.catalog.ValidateMove(date, oldSlot, newSlot); err != nil {
		return "", err
	}
	minute, _ := timeparse.Minutes(newSlot)

	var title string
	err := c.inTx(ctx, "move", func(tx *sql.Tx) error {
		t, ok, err := c.occupant(ctx, tx, date, oldSlot)
		if err != nil {
			return backendErr("move", err)
		}
		if !ok {
			return calendar.ErrNotFound
		}
		title = t
		if oldSlot == newSlot {
			return nil
		}
		occupant, taken, err := c.occupant(ctx, tx, date, newSlot)
		if err != nil {
			return backendErr("move", err)
		}
		if taken {
			return &calendar.ConflictError{Date: date, Time: newSlot, Occupant: occupant}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE events SET time = ?, minute = ? WHERE date = ? AND time = ?`,
			newSlot, minute, date, oldSlot,
		)
		if err != nil {
			return backendErr("move", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

func (c *CalendarStore) ViewDay(ctx context.Context, date string) ([]calendar.Entry, error) {
	if err := calendar.ValidateDate(date); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT time, title FROM events WHERE date = ? ORDER BY minute ASC`, date)
	if err != nil {
		return nil, backendErr("view_day", err)
	}
	defer rows.Close()

	entries := []calendar.Entry{}
	for rows.Next() {
		var e calendar.Entry
		if err := rows.Scan(&e.Time, &e.Title); err != nil {
			return nil, backendErr("view_day", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("view_day", err)
	}
	return entries, nil
}

func (c *CalendarStore) ViewWeek(ctx context.Context, date string) ([]calendar.Day, error) {
	dates, err := timeparse.WeekDates(date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", calendar.ErrInvalidArgument, date)
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT date, time, title FROM events WHERE date >= ? AND date <= ? ORDER BY date ASC, minute ASC`,
		dates[0], dates[6])
	if err != nil {
		return nil, backendErr("view_week", err)
	}
	defer rows.Close()

	var days []calendar.Day
	for rows.Next() {
		var d string
		var e calendar.Entry
		if err := rows.Scan(&d, &e.Time, &e.Title); err != nil {
			return nil, backendErr("view_week", err)
		}
		if n := len(days); n == 0 || days[n-1].Date != d {
			days = append(days, calendar.Day{Date: d})
		}
		days[len(days)-1].Entries = append(days[len(days)-1].Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("view_week", err)
	}
	return days, nil
}

// Catalog returns the slot catalog the store books against.
func (c *CalendarStore) Catalog() calendar.Catalog { return c.catalog }
