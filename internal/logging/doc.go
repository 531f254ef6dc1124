// Package logging assembles the structured slog loggers shared by the
// satchel daemon and CLI.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attr helpers so components tag log lines with the
// same field names everywhere. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
