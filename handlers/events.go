package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"milestone-escrow/errs"
	"milestone-escrow/logger"
	"milestone-escrow/models"
	"milestone-escrow/repository"
)

const (
	maxEventPage = 1000
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait / 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ListEvents pages through the persisted event log: GET /events?after=&limit=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if s := q.Get("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, "list events", errs.Detail(errs.ErrInvalidParameters, "invalid after"))
			return
		}
		after = v
	}
	limit := 100
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxEventPage {
			writeError(w, "list events", errs.Detail(errs.ErrInvalidParameters, "limit must be 1..%d", maxEventPage))
			return
		}
		limit = v
	}

	var list []*models.Event
	err := h.Store.View(func(rd repository.Reader) error {
		var err error
		list, err = rd.Events(after, limit)
		return err
	})
	if err != nil {
		writeError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

// StreamEvents upgrades to a websocket and forwards every committed event
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	feed, cancel := h.Hub.Subscribe()
	defer cancel()

	// reader: only control frames are expected, a read error means the peer left
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Logger.Debug("Unexpected close of event stream", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-feed:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				logger.Logger.Error("Failed to encode event", zap.Uint64("seq", e.Seq), zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
