// Package logging wires a structured slog.Logger for cmd/scriptfs: a
// colorized handler for an interactive terminal, JSON otherwise, matching
// desertwitch-mirrorshuttle's logHandler selection.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options configures New.
type Options struct {
	// Output is where log lines are written; typically os.Stderr.
	Output io.Writer
	// Debug enables slog.LevelDebug; otherwise the level is slog.LevelInfo.
	// The Debug lines emitted are startup details and the façade's
	// Init/Destroy; classification and exec emit no Debug lines.
	Debug bool
	// JSON forces slog.NewJSONHandler regardless of whether Output is a
	// terminal. Auto-detected from Output when false and Output is *os.File.
	JSON bool
}

// New returns a configured *slog.Logger. A terminal gets tint's colorized,
// human-readable rendering; anything else (a pipe, a log file, or
// Options.JSON set) gets slog.NewJSONHandler.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.JSON || !isTerminal(out) {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}
