package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/interstellare/server/internal/stream"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebsocket carries the same events as HandleSimulation, one text
// frame each, and accepts command envelopes as inbound text frames.
func HandleWebsocket(w http.ResponseWriter, r *http.Request, deps *Deps) {
	sub, err := deps.Hub.Subscribe()
	if err != nil {
		http.Error(w, "simulation stopped", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	log := deps.Log.With(zap.Uint64("subscriber", sub.ID), zap.String("ip", r.RemoteAddr))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(deps.Config.Network.MaxBodyBytes)

	readDone := make(chan error, 1)
	go func() {
		for {
			typ, payload, err := conn.ReadMessage()
			if err != nil {
				readDone <- err
				return
			}
			if typ != websocket.TextMessage {
				continue
			}
			if err := deps.Commands.Enqueue(payload); err != nil {
				log.Warn("websocket input dropped", zap.Error(err))
			}
		}
	}()

	writeTimeout := deps.Config.Network.WriteTimeout
	var id uint64
	var frame []byte
	for {
		select {
		case <-r.Context().Done():
			closeWebsocket(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case err := <-readDone:
			log.Debug("websocket peer left", zap.Uint64("sent", id), zap.Error(err))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				closeWebsocket(conn, websocket.CloseGoingAway, "stream closed")
				return
			}
			id++
			frame = appendFrame(frame[:0], id, ev)
			if writeTimeout > 0 {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// appendFrame encodes {"id":<n>,"event":"<kind>","data":<payload>}.
func appendFrame(dst []byte, id uint64, ev stream.Event) []byte {
	dst = append(dst, `{"id":`...)
	dst = strconv.AppendUint(dst, id, 10)
	dst = append(dst, `,"event":"`...)
	dst = append(dst, ev.Kind.String()...)
	dst = append(dst, `","data":`...)
	dst = append(dst, ev.Data...)
	return append(dst, '}')
}

func closeWebsocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
