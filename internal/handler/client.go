package handler

import (
	"net/http"

	"sharkcam/internal/logger"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewerHub tracks live-view connections.
type ViewerHub interface {
	Register(conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// ViewWebsocketHandler upgrades a viewer connection and registers it with the
// hub, which pushes overlaid frames and detection events to it.
func ViewWebsocketHandler(hub ViewerHub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warning("Viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
