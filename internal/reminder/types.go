package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// TimeLayout is the persisted time-of-day format (24-hour, zero padded).
	TimeLayout = "15:04"
	// DateLayout is the persisted calendar date format.
	DateLayout = "2006-01-02"
)

// Reminder is the persisted reminder definition.
//
// ID is process-local identity; it is assigned on create/load and never
// written to disk.
type Reminder struct {
	ID        string  `json:"-"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Date      *string `json:"date"`
	Time      string  `json:"time"`
	Recurring bool    `json:"recurring"`
}

// Daily builds a recurring reminder.
func Daily(title, message, hhmm string) Reminder {
	return Reminder{Title: title, Message: message, Time: hhmm, Recurring: true}
}

// Once builds a one-shot reminder for the given date.
func Once(title, message, date, hhmm string) Reminder {
	d := date
	return Reminder{Title: title, Message: message, Date: &d, Time: hhmm}
}

// DateString returns the raw date or "" when absent.
func (r Reminder) DateString() string {
	if r.Date == nil {
		return ""
	}
	return *r.Date
}

// Key identifies a definition by content. Two reminders with equal keys
// are interchangeable on disk.
func (r Reminder) Key() string {
	date := "\x00nil"
	if r.Date != nil {
		date = *r.Date
	}
	return strings.Join([]string{r.Title, r.Message, date, r.Time, strconv.FormatBool(r.Recurring)}, "\x1f")
}

// Clock is a validated time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// On returns the instant at this time of day on the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, t.Location())
}

// Day is a validated calendar date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Day) String() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day) }

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// Compare returns -1, 0 or +1.
func (d Day) Compare(o Day) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// At combines the day with a clock time in loc.
func (d Day) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Schedule is the parsed form of a Reminder.
type Schedule struct {
	Clock     Clock
	Day       Day // zero for recurring reminders
	Recurring bool
}

// Parse validates r and returns its Schedule. Errors wrap ErrMalformedReminder.
func Parse(r Reminder) (Schedule, error) {
	c, err := ParseClock(r.Time)
	if err != nil {
		return Schedule{}, err
	}
	if r.Recurring {
		return Schedule{Clock: c, Recurring: true}, nil
	}
	if r.Date == nil || strings.TrimSpace(*r.Date) == "" {
		return Schedule{}, fmt.Errorf("%w: date is required for a one-time reminder", ErrMalformedReminder)
	}
	d, err := ParseDay(*r.Date)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Clock: c, Day: d}, nil
}

// ParseClock parses "HH:MM" (24-hour). A single-digit hour is accepted.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return Clock{}, fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrMalformedReminder, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("%w: invalid hour in %q", ErrMalformedReminder, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("%w: invalid minute in %q", ErrMalformedReminder, s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ParseDay parses "YYYY-MM-DD".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrMalformedReminder, s)
	}
	return DayOf(t), nil
}
