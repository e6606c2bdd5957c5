// ws.go streams run progress over a WebSocket.
//
// GET /api/v1/analyses/:id/ws
//
// The server sends one JSON models.ProgressEvent per change, starting with
// the current state, and closes the socket once the run is terminal.
package handlers

import (
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// checkOrigin accepts same-host pages and the configured CORS origins. The
// session cookie rides along on the upgrade request, so other sites must
// not be able to open the socket on a user's behalf.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || slices.Contains(h.Config.AllowedOrigins, origin)
}

// StreamProgress upgrades to a WebSocket and forwards progress events.
func (h *Handler) StreamProgress(c *gin.Context) {
	events, cancel, err := h.Store.Subscribe(middleware.GetSessionID(c), c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusNotFound, "not_found", "Analysis not found")
		return
	}
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Go Pattern: A reader goroutine is required to process control frames.
	// It also tells us when the client goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
