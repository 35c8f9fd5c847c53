package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/tokenledger/internal/events"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler serves GET /ledger/stream, a websocket feed of ledger events.
//
// With ?since=N the stream first replays history entries from index N, then
// switches to live events without gaps or duplicates.
type StreamHandler struct {
	hub    *events.Hub
	svc    tokenSvc
	logger *zap.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(hub *events.Hub, svc tokenSvc, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, svc: svc, logger: logger}
}

// Register mounts the stream route on the given router group.
func (h *StreamHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/ledger/stream", h.Stream)
}

// Stream upgrades the connection and forwards events until either side closes.
func (h *StreamHandler) Stream(c *gin.Context) {
	since := -1
	if s := c.Query("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before reading the backfill so nothing committed in between is lost.
	sub := h.hub.Subscribe()
	defer sub.Close()

	next := 0
	if since >= 0 {
		entries, _ := h.svc.HistoryPage(c.Request.Context(), since, 0)
		for i := range entries {
			ev := events.NewTransactionCompleted(h.svc.Symbol(c.Request.Context()), entries[i])
			if err := h.write(conn, ev); err != nil {
				return
			}
		}
		next = since + len(entries)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
					time.Now().Add(streamWriteWait))
				return
			}
			if ev.Entry != nil && ev.Entry.Index < next {
				continue
			}
			if err := h.write(conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, ev events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait)) //nolint:errcheck
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("stream write failed", zap.Error(err))
		return err
	}
	return nil
}
