// Package logx is bosstimer's structured logging.
//
// Logger wraps zerolog with typed field helpers. Service owns the sinks and
// swaps them on config reload: a console writer on stderr (stdout belongs to
// the live timer table), a size-rotated JSON file, and an optional
// rate-limited Telegram chat for warnings.
package logx
