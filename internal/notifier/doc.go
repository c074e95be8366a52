// Package notifier delivers fired reminders.
//
// The scheduling engine only knows the Sink interface: one Deliver call per
// fired reminder, at most once, no retry. Concrete sinks (log, command,
// telegram) are thin adapters. Service wraps a sink with a token-bucket rate
// limit, a per-call timeout and a small in-memory delivery history.
package notifier
