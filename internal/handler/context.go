package handler

import (
	"net/http"

	"github.com/interstellare/server/internal/config"
	"github.com/interstellare/server/internal/stream"
	"go.uber.org/zap"
)

// Commander accepts raw command envelopes for the simulation owner.
type Commander interface {
	Enqueue(raw []byte) error
}

// Deps holds shared dependencies injected into all route handlers.
type Deps struct {
	Commands Commander
	Hub      *stream.Hub
	Config   *config.Config
	Log      *zap.Logger
}

// RegisterAll registers all routes into the mux.
func RegisterAll(mux *http.ServeMux, deps *Deps) {
	// Viewers
	mux.HandleFunc("GET /simulation", func(w http.ResponseWriter, r *http.Request) {
		HandleSimulation(w, r, deps)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		HandleWebsocket(w, r, deps)
	})

	// Commands
	mux.HandleFunc("POST /input", func(w http.ResponseWriter, r *http.Request) {
		HandleInput(w, r, deps)
	})

	// Browser client
	mux.Handle("GET /", staticHandler(deps))
}
