// Package storage persists the timer list and the alarm history.
//
// Drivers:
//   - file: the entry list as a JSON array (atomic rewrite) plus
//     append-only JSON Lines for alarms and notifier dedup state
//   - sqlite: the same data in a SQLite database (modernc.org/sqlite)
package storage
