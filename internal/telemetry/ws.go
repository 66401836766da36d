package telemetry

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/sdragc/internal/logging"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
}

// handleWS streams the history and then every new report as JSON text
// frames until the client goes away.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.F("error", err.Error()))
		return
	}
	defer conn.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	// the client never sends anything useful; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, report := range h.History() {
		if err := writeReport(conn, report); err != nil {
			return
		}
	}

	for {
		select {
		case report, ok := <-ch:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeReport(conn, report); err != nil {
				h.logger.Debug("websocket client dropped", logging.F("error", err.Error()))
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeReport(conn *websocket.Conn, report GainReport) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(report)
}
