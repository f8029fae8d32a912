// Package timeparse resolves free-form date and time text into the canonical
// strings every calendar component compares by value: dates as YYYY-MM-DD and
// times as a 12-hour label such as "2:00 PM".
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	// DateLayout is the canonical date format.
	DateLayout = "2006-01-02"
	// TimeLayout is the canonical slot-time format.
	TimeLayout = "3:04 PM"
)

// ErrUnresolvable is returned when text cannot be resolved to a calendar date
// or time of day. Callers must not substitute a default.
var ErrUnresolvable = errors.New("could not resolve date/time")

// absoluteDateLayouts are tried before any natural-language parsing.
var absoluteDateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
	"15.04",
	"3.04 PM",
	"3.04PM",
}

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	meridiemDots  = regexp.MustCompile(`(?i)\b([ap])\.?\s?m\.?`)
	allDigits     = regexp.MustCompile(`^\d+$`)
	leadingFiller = regexp.MustCompile(`(?i)^(at|@|around|by)\s+`)

	numericDate = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`)
	monthDay    = regexp.MustCompile(`(?i)^(?:(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+)?(?:(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\.?|([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?)(?:,?\s+(\d{4}))?$`)
	dateWord    = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|[a-z]*day|days|weeks?|fortnight|months?|years?|jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sept?(ember)?|oct(ober)?|nov(ember)?|dec(ember)?)\b|\d[-/.]\d`)
	filler      = regexp.MustCompile(`(?i)\b(on|the|at|of|for|by|in|this|next)\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// Normalizer resolves dates relative to a reference clock in a single fixed
// zone. Given the same reference instant it is deterministic and side-effect
// free.
type Normalizer struct {
	loc    *time.Location
	now    func() time.Time
	parser *when.Parser
}

// New creates a Normalizer that resolves relative dates ("tomorrow",
// "next monday") against the current time in loc.
func New(loc *time.Location) *Normalizer {
	return NewWithClock(loc, time.Now)
}

// NewWithClock creates a Normalizer with a custom reference clock (for testing).
func NewWithClock(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return &Normalizer{loc: loc, now: now, parser: p}
}

// Location returns the fixed zone dates are resolved in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Today returns the canonical date of the reference instant.
func (n *Normalizer) Today() string {
	return n.now().In(n.loc).Format(DateLayout)
}

// Date resolves text to a canonical YYYY-MM-DD date. Text that names only a
// time of day, or an absolute date that does not exist, is unresolvable.
func (n *Normalizer) Date(text string) (string, error) {
	s := clean(text)
	if s == "" {
		return "", fmt.Errorf("%w: empty date", ErrUnresolvable)
	}
	fail := fmt.Errorf("%w: date %q", ErrUnresolvable, text)

	for _, layout := range absoluteDateLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(n.loc).Format(DateLayout), nil
	}
	if numericDate.MatchString(s) {
		return "", fail
	}

	ref := n.now().In(n.loc)
	if d, ok := n.monthDayDate(s, ref); ok {
		if d == "" {
			return "", fail
		}
		return d, nil
	}

	if _, err := NormalizeTime(s); err == nil {
		return "", fail
	}
	if !dateWord.MatchString(s) && !allDigits.MatchString(s) {
		return "", fail
	}

	if r, err := n.parser.Parse(s, ref); err == nil && r != nil && dateWord.MatchString(s) {
		rest := s[:r.Index] + " " + s[r.Index+len(r.Text):]
		if strings.TrimSpace(filler.ReplaceAllString(rest, "")) == "" {
			return r.Time.In(n.loc).Format(DateLayout), nil
		}
	}

	// Bare numbers ("10", "2024") are too ambiguous to be a date.
	if allDigits.MatchString(s) && len(s) < 8 {
		return "", fail
	}
	if t, err := dateparse.ParseIn(s, n.loc); err == nil {
		return t.In(n.loc).Format(DateLayout), nil
	}

	return "", fail
}

// monthDayDate resolves "June 14", "14th of June" and "Fri, Jun 14 2024". ok
// reports whether s has that shape; an empty date with ok set means the day
// does not exist in that month. A missing year is the reference year.
func (n *Normalizer) monthDayDate(s string, ref time.Time) (string, bool) {
	m := monthDay.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	day, name := m[1], m[2]
	if name == "" {
		day, name = m[4], m[3]
	}
	month, ok := months[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	var d, y int
	fmt.Sscanf(day, "%d", &d)
	y = ref.Year()
	if m[5] != "" {
		fmt.Sscanf(m[5], "%d", &y)
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, n.loc)
	if t.Day() != d || t.Month() != month {
		return "", true
	}
	return t.Format(DateLayout), true
}

// Time resolves text to a canonical time of day such as "2:00 PM". A bare
// hour between 1 and 12 without AM/PM is rejected as ambiguous.
func (n *Normalizer) Time(text string) (string, error) {
	return NormalizeTime(text)
}

// NormalizeTime resolves text to a canonical time of day. It does not depend
// on any reference clock.
func NormalizeTime(text string) (string, error) {
	s := clean(text)
	if s == "" {
		return "", fmt.Errorf("%w: empty time", ErrUnresolvable)
	}
	s = leadingFiller.ReplaceAllString(s, "")

	switch strings.ToLower(s) {
	case "noon", "midday":
		return "12:00 PM", nil
	case "midnight":
		return "12:00 AM", nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(TimeLayout), nil
	}

	up := strings.ToUpper(meridiemDots.ReplaceAllString(s, "${1}M"))
	up = strings.ReplaceAll(up, "O'CLOCK", "")
	up = strings.TrimSpace(up)

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, up); err == nil {
			return t.Format(TimeLayout), nil
		}
	}

	// Bare 24-hour values are unambiguous only past noon or at zero.
	if allDigits.MatchString(up) && len(up) <= 2 {
		var h int
		fmt.Sscanf(up, "%d", &h)
		if h == 0 || (h > 12 && h < 24) {
			return time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format(TimeLayout), nil
		}
	}

	return "", fmt.Errorf("%w: time %q", ErrUnresolvable, text)
}

// IsDate reports whether s is already a canonical date.
func IsDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}

// IsTime reports whether s is already a canonical time.
func IsTime(s string) bool {
	t, err := time.Parse(TimeLayout, s)
	return err == nil && t.Format(TimeLayout) == s
}

// Minutes returns the minutes since midnight of a canonical time, for ordering.
func Minutes(canonical string) (int, error) {
	t, err := time.Parse(TimeLayout, canonical)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrUnresolvable, canonical)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// WeekStart returns the Monday on or before the canonical date.
func WeekStart(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: date %q", ErrUnresolvable, date)
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(DateLayout), nil
}

// WeekDates returns the seven canonical dates of the Monday-started week
// containing date.
func WeekDates(date string) ([]string, error) {
	start, err := WeekStart(date)
	if err != nil {
		return nil, err
	}
	t, _ := time.Parse(DateLayout, start)
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = t.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates, nil
}

// At combines a canonical date and time into an instant in loc.
func At(date, slot string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+slot, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %s", ErrUnresolvable, date, slot)
	}
	return t, nil
}

func clean(text string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.Trim(s, ".,;")
}
