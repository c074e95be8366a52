package reminders

import (
	"errors"

	"remindd/internal/reminder"
	"remindd/internal/task/scheduler"
)

// Created is the result of CreateReminder.
type Created struct {
	ID           string
	Registration scheduler.Registration
}

// EntryError is a per-entry failure reported by LoadReminders.
type EntryError struct {
	Index int
	Title string
	Err   error
}

func (e EntryError) Error() string { return e.Err.Error() }
func (e EntryError) Unwrap() error { return e.Err }

// LoadReport summarizes a load. A load never aborts on a single bad entry.
type LoadReport struct {
	Loaded   int // definitions kept in the list
	Armed    int
	CaughtUp int
	Dropped  int
	Errors   []EntryError
}

// Malformed counts entries rejected with reminder.ErrMalformedReminder.
func (r LoadReport) Malformed() int {
	n := 0
	for _, e := range r.Errors {
		if errors.Is(e.Err, reminder.ErrMalformedReminder) {
			n++
		}
	}
	return n
}

// Item pairs a stored reminder with its live job, if any.
type Item struct {
	Reminder reminder.Reminder
	Job      *scheduler.JobInfo
}
