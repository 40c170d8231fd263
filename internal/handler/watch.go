package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/store"
)

const (
	watchWriteWait = 10 * time.Second
	watchPingEvery = 30 * time.Second
)

// upgrader promotes HTTP requests to websocket connections. The map
// pages are served from the same origin; cross-origin dashboards are
// expected to go through the polling endpoints instead.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WatchHandler streams store change notifications to connected
// clients so open tabs converge without waiting for the next poll.
// Each message names the key that changed; clients re-read state
// through the regular endpoints.
type WatchHandler struct {
	Store store.Store
}

// NewWatchHandler constructs a WatchHandler over the given store.
func NewWatchHandler(s store.Store) *WatchHandler {
	if s == nil {
		panic("nil store passed to NewWatchHandler")
	}
	return &WatchHandler{Store: s}
}

// Serve upgrades the connection and forwards change notifications
// until the client disconnects or the subscription fails.
func (h *WatchHandler) Serve(c echo.Context) error {
	changes, cancel, err := h.Store.Subscribe(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "change feed unavailable"})
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}
	defer conn.Close()

	// Drain client frames so close handshakes and pongs are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(echo.Map{"key": change.Key}); err != nil {
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
