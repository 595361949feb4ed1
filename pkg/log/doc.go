// Package log provides the structured logger shared by every package in
// this module. It wraps zerolog with a global Logger instance, an Init
// that switches between console and JSON output, and a handful of
// With* helpers for tagging entries with the component, connection, or
// transaction they came from.
package log
