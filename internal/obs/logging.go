// Package obs bootstraps the ambient logging and tracing used across every
// DocBrain component: a process-wide zerolog logger and an OpenTelemetry
// tracer used only for span API instrumentation (no exporter is wired —
// metrics/UI are explicit spec non-goals, but the span boundaries themselves
// cost nothing and mirror the teacher's instrumentation conventions).
package obs

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. If logPath is non-empty,
// logs are written there (append mode) instead of stdout; on failure to open
// the file it falls back to stdout and prints a one-line warning to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			stdlog.Printf("failed to open log file %q: %v, falling back to stdout", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}
