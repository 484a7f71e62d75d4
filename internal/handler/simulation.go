package handler

import (
	"net/http"
	"time"

	"github.com/interstellare/server/internal/net"
	"go.uber.org/zap"
)

// HandleSimulation streams snapshots and removal notices as server-sent
// events until the peer leaves, the hub closes or the server shuts down.
// Event ids count from 1 per connection.
func HandleSimulation(w http.ResponseWriter, r *http.Request, deps *Deps) {
	sub, err := deps.Hub.Subscribe()
	if err != nil {
		http.Error(w, "simulation stopped", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	log := deps.Log.With(zap.Uint64("subscriber", sub.ID), zap.String("ip", r.RemoteAddr))
	rc := http.NewResponseController(w)
	writeTimeout := deps.Config.Network.WriteTimeout

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}
	log.Debug("viewer attached")

	var keepalive <-chan time.Time
	if iv := deps.Config.Network.KeepaliveInterval; iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		keepalive = t.C
	}

	var id uint64
	for {
		select {
		case <-r.Context().Done():
			log.Debug("viewer detached", zap.Uint64("sent", id))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				log.Debug("stream closed", zap.Uint64("sent", id))
				return
			}
			id++
			if err := net.WriteEvent(w, id, ev.Kind.String(), ev.Data); err != nil {
				return
			}
		case <-keepalive:
			if err := net.WriteComment(w, "keepalive"); err != nil {
				return
			}
		}
		if writeTimeout > 0 {
			rc.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := rc.Flush(); err != nil {
			log.Debug("viewer write failed", zap.Error(err))
			return
		}
	}
}
