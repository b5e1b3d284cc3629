// Package logging sets up the structured logger shared by the three
// daemons (spec §1's "logging setup... trivial glue", carried per
// the ambient-stack convention of attaching a component attribute to
// every daemon's root logger).
package logging

import (
	"io"
	"log/slog"
)

// New returns a log/slog.Logger writing to w, tagged with component.
// JSON output is used unless text is requested (JSON is the right
// default for a daemon under systemd/journald; text is easier to read
// at a terminal during development).
func New(w io.Writer, component string, text bool, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("component", component)
}
