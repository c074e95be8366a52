// Package reminders is the composition root of the scheduling engine.
//
// It keeps the reminder list (storage.Store) and the live job set
// (scheduler.Service) in step: creation appends then registers, cancel
// removes both, and load rebuilds the job set from the stored definitions
// against the current clock. Jobs are never persisted.
package reminders
