package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	streamBatch    = 100
	defaultPollGap = 2 * time.Second
)

// StreamHandler pushes new etl_event_log entries over a websocket
type StreamHandler struct {
	events   contracts.EventLogReader
	poll     time.Duration
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler. poll <= 0 uses the default gap.
func NewStreamHandler(events contracts.EventLogReader, poll time.Duration, log *logger.Logger) *StreamHandler {
	if poll <= 0 {
		poll = defaultPollGap
	}
	return &StreamHandler{
		events: events,
		poll:   poll,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeWait,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// Events streams entries with id > after as JSON text messages, oldest first
// GET /ws/events?after=0
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// read loop: handles pongs and notices the client going away
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := h.logger.WithField("remote", r.RemoteAddr)
	log.Debug("Event stream opened")
	defer log.Debug("Event stream closed")

	last := int64(after)
	poll := time.NewTicker(h.poll)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		events, err := h.events.ListEventsAfter(ctx, last, streamBatch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Event stream poll failed")
		}

		for _, e := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
			last = e.ID
		}

		// a full batch means more are waiting
		if len(events) == streamBatch {
			continue
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}
