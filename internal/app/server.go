package app

import (
	"net/http"

	"scribe/internal/api"
	"scribe/internal/logging"
	"scribe/internal/middleware"
)

// Handler exposes the app over HTTP with request ids, access logs and panic recovery.
func (a *App) Handler(logger *logging.Logger) http.Handler {
	mux := api.Routes(
		api.NewCommandHandler(a.Commands),
		api.NewFileHandler(a.Workspace),
		api.NewStatsHandler(a.Stats),
	)

	return middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)
}
