package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = pongWait * 9 / 10
	maxMessageSize = 4096
)

// WSHandler is the websocket side of the broadcast relay. It only moves
// content-free signals; clients refetch the session over REST.
type WSHandler struct {
	hub      *relay.Hub
	notifier app.Notifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler wires the socket endpoint to hub for room membership and to
// notifier for client-requested broadcasts (the Redis bridge when configured).
func NewWSHandler(hub *relay.Hub, notifier app.Notifier, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = hub
	}
	return &WSHandler{
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Client frames.
const (
	msgJoinSession   = "join_session"
	msgTriggerUpdate = "trigger_update"
)

// Server frames.
const (
	msgJoined         = "joined"
	msgSessionUpdated = "session_updated"
	msgError          = "error"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type joinedPayload struct {
	Room string `json:"room"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and relays room signals until the client disconnects.
// A sessionId query parameter joins that room immediately.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	client := relay.NewClient(uuid.NewString())
	defer h.hub.LeaveAll(client)
	h.logger.Debug("ws connected", "client_id", client.ID)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	signalsDone := make(chan struct{})

	// Single writer: gorilla connections support one concurrent writer.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("ws write error", "client_id", client.ID, "err", err)
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	enqueue := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(signalsDone)
		for {
			select {
			case <-client.Signals():
				select {
				case send <- outboundMessage{Type: msgSessionUpdated}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if sessionID := r.URL.Query().Get("sessionId"); sessionID != "" {
		h.join(sessionID, client, enqueue)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var payload sessionPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage{Type: msgError, Payload: errorPayload{Message: "invalid payload"}})
				continue
			}
		}
		switch inbound.Type {
		case msgJoinSession:
			if payload.SessionID == "" {
				enqueue(outboundMessage{Type: msgError, Payload: errorPayload{Message: "sessionId is required"}})
				continue
			}
			h.join(payload.SessionID, client, enqueue)
		case msgTriggerUpdate:
			if payload.SessionID == "" {
				enqueue(outboundMessage{Type: msgError, Payload: errorPayload{Message: "sessionId is required"}})
				continue
			}
			h.notifier.Signal(context.WithoutCancel(r.Context()), payload.SessionID)
		default:
			enqueue(outboundMessage{Type: msgError, Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-signalsDone
	close(send)
	<-writerDone
	h.logger.Debug("ws disconnected", "client_id", client.ID)
}

func (h *WSHandler) join(sessionID string, client *relay.Client, enqueue func(outboundMessage)) {
	h.hub.JoinRoom(sessionID, client)
	enqueue(outboundMessage{Type: msgJoined, Payload: joinedPayload{Room: relay.RoomName(sessionID)}})
}
