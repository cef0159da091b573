package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocket message types for the status stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeStatus = "status"
	MsgTypePong   = "pong"
	MsgTypeClosed = "closed"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSMessage is one frame of the status stream
type WSMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// WebSocketHandler streams a session's status lines to the browser
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new status stream handler
func NewWebSocketHandler(sessions SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4 * 1024,
		},
	}
}

// HandleStatusStream upgrades the connection and forwards every status line
// of the session until either side goes away.
func (wsh *WebSocketHandler) HandleStatusStream(c echo.Context) error {
	id := c.Param("id")
	s, ok := wsh.sessions.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// subscribe before the handshake completes so no line is missed
	updates, cancel := s.Subscribe()
	defer cancel()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log.Debug().Str("session", id).Msg("status stream connected")

	// Reader: answers pings, notices the client leaving
	pongs := make(chan struct{}, 1)
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("session", id).Msg("status stream read error")
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case status, open := <-updates:
			if !open {
				wsh.send(ws, WSMessage{Type: MsgTypeClosed})
				return nil
			}
			phase := string(s.Controller.State().Phase)
			if err := wsh.send(ws, WSMessage{Type: MsgTypeStatus, Status: status, Phase: phase}); err != nil {
				return nil
			}
		case <-pongs:
			if err := wsh.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-gone:
			log.Debug().Str("session", id).Msg("status stream disconnected")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Msg("status stream write failed")
		return err
	}
	return nil
}
