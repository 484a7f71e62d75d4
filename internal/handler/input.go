package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/interstellare/server/internal/system"
	"go.uber.org/zap"
)

// HandleInput forwards the request body to the owner untouched. Parsing
// happens on the owner side, so a 200 only means the envelope was queued.
func HandleInput(w http.ResponseWriter, r *http.Request, deps *Deps) {
	r.Body = http.MaxBytesReader(w, r.Body, deps.Config.Network.MaxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest)
		return
	}

	switch err := deps.Commands.Enqueue(raw); {
	case err == nil:
		writeJSON(w, http.StatusOK)
	case errors.Is(err, system.ErrQueueFull):
		deps.Log.Warn("command queue full, input dropped", zap.String("ip", r.RemoteAddr))
		writeJSON(w, http.StatusServiceUnavailable)
	default:
		deps.Log.Debug("input rejected", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable)
	}
}

// writeJSON answers with an empty JSON object.
func writeJSON(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len("{}")))
	w.WriteHeader(code)
	io.WriteString(w, "{}")
}
