package handlers

import (
	"net/http"
	"time"

	"detectsuite/internal/logger"
	"detectsuite/internal/services"

	"github.com/gorilla/websocket"
)

const (
	viewerReadTimeout = 60 * time.Second
	viewerPingPeriod  = viewerReadTimeout * 9 / 10
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler subscribes a viewer to the frames of a browser
// session. The topic is the "session" query parameter, or the caller's
// session cookie when absent.
func ViewWebsocketHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("session")
		if topic == "" {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				http.Error(w, "missing session", http.StatusBadRequest)
				return
			}
			topic = cookie.Value
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
			return nil
		})
		defer connection.Close()

		// WriteControl may run concurrently with the hub's writes.
		stopPing := make(chan struct{})
		defer close(stopPing)
		go func() {
			ticker := time.NewTicker(viewerPingPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					deadline := time.Now().Add(10 * time.Second)
					if err := connection.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
						return
					}
				case <-stopPing:
					return
				}
			}
		}()

		hub := manager.GetWebsocketService()
		hub.Register(connection, topic)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warning("Viewer of %s disconnected: %v", topic, err)
				}
				break
			}
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		}
	}
}
