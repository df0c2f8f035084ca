// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"scribe/internal/command"
	apperrors "scribe/internal/errors"
	"scribe/internal/stats"
	"scribe/internal/workspace"
)

const maxPayload = 32 << 20

// Dispatcher runs commands by name.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload json.RawMessage) (command.Result, error)
}

// FileLister lists tracked files.
type FileLister interface {
	Files() []workspace.File
}

// StatsReader reports usage statistics.
type StatsReader interface {
	Summary() (stats.Summary, error)
}

type CommandHandler struct {
	dispatcher Dispatcher
	maxPayload int64
}

func NewCommandHandler(d Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d, maxPayload: maxPayload}
}

// Dispatch handles POST /api/commands/{name}. The body is the event payload.
// A command that ran answers 200 with its result, even when it did not save.
func (h *CommandHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayload))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, apperrors.TooLarge(fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit)))
		return
	}
	if err != nil {
		writeError(w, apperrors.ValidationError("reading request body", err.Error()))
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), name, payload)
	if errors.Is(err, command.ErrUnknownCommand) {
		writeError(w, apperrors.NotFound(fmt.Sprintf("unknown command: %s", name)))
		return
	}
	if err != nil {
		writeError(w, apperrors.Internal("dispatching command", err))
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type FileHandler struct {
	files FileLister
}

func NewFileHandler(files FileLister) *FileHandler {
	return &FileHandler{files: files}
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.files.Files())
}

type StatsHandler struct {
	stats StatsReader
}

func NewStatsHandler(s StatsReader) *StatsHandler {
	return &StatsHandler{stats: s}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summary()
	if err != nil {
		writeError(w, apperrors.Internal("reading statistics", err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the status carried by err. Errors without one
// are reported as internal.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("unexpected error", err)
	}
	writeJSON(w, apperrors.StatusCode(err), appErr)
}
