package dictaserv

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// The status feed only pushes. Reads exist to see pongs and the close frame.
const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxClientFrame = 128
	sendBuffer     = 64
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &Subscriber{
		ID:   uuid.New(),
		Addr: r.RemoteAddr,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	// First frame is the current state so a new client need not poll
	if data, err := json.Marshal(Message{
		Type:      MessageState,
		Timestamp: time.Now(),
		Payload:   StatePayload{Mode: s.mode().String()},
	}); err == nil {
		sub.send <- data
	}

	s.subscribers.Add(sub)
	slog.Debug("New subscriber connected", "subscriberID", sub.ID, "remoteAddr", sub.Addr)

	go s.pushUpdates(sub)
	go s.awaitClose(sub)
}

// pushUpdates writes queued messages and keepalive pings until the
// subscriber's queue is closed or a write fails.
func (s *Server) pushUpdates(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		var err error
		select {
		case message, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			err = sub.conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			err = sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			slog.Debug("Failed to write to subscriber", "error", err, "subscriberID", sub.ID)
			return
		}
	}
}

// awaitClose discards anything the client sends and unregisters the
// subscriber once the connection drops or stops answering pings.
func (s *Server) awaitClose(sub *Subscriber) {
	defer func() {
		s.subscribers.Remove(sub.ID)
		sub.conn.Close()
		slog.Debug("Subscriber disconnected", "subscriberID", sub.ID, "remoteAddr", sub.Addr)
	}()

	sub.conn.SetReadLimit(maxClientFrame)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Subscriber connection lost", "error", err, "subscriberID", sub.ID)
			}
			return
		}
	}
}
