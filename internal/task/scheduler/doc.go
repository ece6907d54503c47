// Package scheduler runs named background jobs on cron or interval schedules
// (autosave, update checks).
//
// Registering a name that already exists replaces the previous schedule, so
// callers can re-register on every config reload.
package scheduler
