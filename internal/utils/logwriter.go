package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

type LogWriterCtx struct {
	logger zerolog.Logger
}

// LogWriter adapts a zerolog logger into an io.Writer, so external
// process output can be streamed into the log line by line.
func LogWriter(l zerolog.Logger) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.logger.Debug().Msg(msg)
	}
	return len(p), nil
}
