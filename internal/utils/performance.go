package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// OperationTimer measures an operation and logs its duration when the returned func runs.
// Runs slower than slow are logged at warn level; a zero slow disables the warning.
//
// Usage:
//
//	defer utils.OperationTimer("snapshot_backfill", time.Minute, log)()
func OperationTimer(operation string, slow time.Duration, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)

		if slow > 0 && duration > slow {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Dur("threshold", slow).
				Msg("Slow operation detected")
			return
		}

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")
	}
}
