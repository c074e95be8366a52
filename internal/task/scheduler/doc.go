// Package scheduler turns reminders into live jobs and fires the due ones.
//
// The scheduler is responsible only for:
//   - computing the first trigger of a reminder (including the missed-time
//     catch-up for recurring reminders)
//   - keeping the live job set
//   - firing due jobs when polled via RunPending
//
// Jobs are never persisted. They are re-derived from reminder definitions
// against the current clock every time a reminder is registered.
package scheduler
