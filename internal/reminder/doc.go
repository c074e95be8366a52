// Package reminder defines the persisted reminder definition, its parsed
// schedule and the error taxonomy shared by the scheduling engine.
//
// A Reminder keeps the raw "HH:MM" / "YYYY-MM-DD" strings exactly as the
// user supplied them so a save/load round trip is lossless. Scheduling code
// never works on those strings directly; it calls Parse once and uses the
// resulting Schedule.
package reminder
