package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Aman-CERP/repoindex/internal/progress"
	"github.com/labstack/echo/v4"
)

// streamProgress writes one `data:` event per snapshot and flushes it.
// It returns when events is closed. After the client goes away the
// remaining snapshots are drained without writing, so the build never
// blocks on its channel.
func streamProgress(c echo.Context, events <-chan progress.Snapshot, logger *slog.Logger) error {
	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	gone := false
	sent := 0
	for snap := range events {
		if gone {
			continue
		}
		data, err := json.Marshal(snap)
		if err != nil {
			logger.Warn("stream_encode_failed", slog.String("error", err.Error()))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("stream_client_gone", slog.Int("sent", sent))
			gone = true
			continue
		}
		w.Flush()
		sent++
	}
	logger.Debug("stream_closed", slog.Int("sent", sent))
	return nil
}
