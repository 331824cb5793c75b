package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

type logformatter struct {
	logger zerolog.Logger
}

func (l *logformatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	req := map[string]interface{}{}

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		req["id"] = reqID
	}

	req["scheme"] = "http"
	if r.TLS != nil {
		req["scheme"] = "https"
	}

	req["proto"] = r.Proto
	req["method"] = r.Method
	req["remote"] = r.RemoteAddr
	req["agent"] = r.UserAgent()
	req["uri"] = r.RequestURI

	return &logentry{
		logger: l.logger.With().Fields(req).Logger(),
	}
}

type logentry struct {
	logger zerolog.Logger
	errors []map[string]interface{}
}

func (e *logentry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	res := map[string]interface{}{
		"time":    time.Now().UTC().Format(time.RFC1123),
		"status":  status,
		"bytes":   bytes,
		"elapsed": float64(elapsed.Nanoseconds()) / 1000000.0, // in milliseconds
	}

	logger := e.logger.With().Fields(map[string]interface{}{"res": res}).Logger()

	if len(e.errors) > 0 {
		logger.Error().Fields(map[string]interface{}{"errors": e.errors}).Msgf("request failed (%d)", status)
	} else {
		logger.Debug().Msg("request complete")
	}
}

func (e *logentry) Panic(v interface{}, stack []byte) {
	e.errors = append(e.errors, map[string]interface{}{
		"message": v,
		"stack":   string(stack),
	})
}
