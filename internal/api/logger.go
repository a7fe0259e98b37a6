package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestLogFormatter plugs zerolog into chi's RequestLogger so access logs
// share the service's log format.
type requestLogFormatter struct{}

func (requestLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestLogEntry{
		logger: log.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Logger(),
	}
}

type requestLogEntry struct {
	logger zerolog.Logger
}

func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	ev := e.logger.Info()
	if status >= http.StatusInternalServerError {
		ev = e.logger.Error()
	}
	ev.Int("status", status).Int("bytes", bytes).Dur("elapsed", elapsed).Msg("Request served")
}

func (e *requestLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error().Interface("panic", v).Bytes("stack", stack).Msg("Request panicked")
}
