// Package logtrace configures the process-wide zerolog logger and carries request
// identifiers through contexts.
package logtrace

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger points the global logger at stderr with millisecond timestamps and the
// given level. Unknown levels fall back to info. The trace level also turns on
// route tracing.
func InitLogger(level string) {
	InitLoggerWithWriter(os.Stderr, level)
}

func InitLoggerWithWriter(w io.Writer, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	SetTraceEnabled(lvl == zerolog.TraceLevel)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}
