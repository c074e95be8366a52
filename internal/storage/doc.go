// Package storage owns the authoritative reminder list and its persistence.
//
// The list lives in memory in insertion order. A Backend serializes the whole
// list on Save and returns it entry by entry on Load:
//   - "json": a single JSON array written atomically (default)
//   - "sqlite": a reminders table keyed by list position
//
// Storage knows nothing about scheduling.
package storage
