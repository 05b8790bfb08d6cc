package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr for the provided error under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog.Attr with the string representation of value.
// Useful for logging identifiers such as UUIDs without eager formatting
// at the call site.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// TaskID returns a slog.Attr for a task identifier. Analysis pipelines log
// every stage with this attribute so one task can be traced end to end.
func TaskID(id fmt.Stringer) slog.Attr {
	return Stringer("task_id", id)
}
