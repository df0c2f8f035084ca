package api

import (
	"net/http"
)

// Routes registers every endpoint on a new mux.
func Routes(commands *CommandHandler, files *FileHandler, stats *StatsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("POST /api/commands/{name}", commands.Dispatch)
	mux.HandleFunc("GET /api/files", files.List)
	mux.HandleFunc("GET /api/stats", stats.Get)

	return mux
}
