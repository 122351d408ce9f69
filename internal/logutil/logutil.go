// Package logutil centralizes the go-kit/log wiring so every component
// logs through the same leveled logger, grounded on how gossip.Config and
// cmd/server/main.go set up logging in the teacher.
package logutil

import (
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New wraps base with a level filter. When verbose is false, debug-level
// logging is dropped, matching cmd/server/main.go's `!args.verbose` gate.
func New(base kitlog.Logger, verbose bool) kitlog.Logger {
	if base == nil {
		base = kitlog.NewNopLogger()
	}

	if verbose {
		return level.NewFilter(base, level.AllowDebug())
	}

	return level.NewFilter(base, level.AllowInfo())
}

// Nop returns a logger that discards everything, used as the default when
// a Config does not set one explicitly.
func Nop() kitlog.Logger {
	return kitlog.NewNopLogger()
}

// With is a short alias for kitlog.With, kept so call sites only need to
// import this package rather than go-kit/log directly.
func With(logger kitlog.Logger, keyvals ...interface{}) kitlog.Logger {
	return kitlog.With(logger, keyvals...)
}
