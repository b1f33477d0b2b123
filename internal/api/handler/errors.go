package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/gamewallet/internal/api/apierr"
)

// writeError writes err as an API error. Errors that map to a 500 are
// logged here since their details never reach the client.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if apierr.IsInternal(err) {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	apierr.WriteError(w, err)
}
