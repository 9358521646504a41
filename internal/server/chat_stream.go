package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smallbiznis/mystictxt/internal/chat/liveevents"
	"github.com/smallbiznis/mystictxt/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamChatSession pushes session and message events over a websocket.
// Clients keep polling as the source of truth; the stream only shortens latency.
func (s *Server) StreamChatSession(c *gin.Context) {
	if s.liveEvents == nil || !s.cfg.Chat.StreamEnabled {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	actor, ok := mustActor(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	// Ownership and expiry are resolved before the upgrade so errors stay JSON.
	view, err := s.chatSvc.GetSessionView(c.Request.Context(), actor, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	subscription, backlog, err := s.liveEvents.Subscribe(sessionID)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := logger.WithSession(logger.FromContext(c.Request.Context()), sessionID)

	initial := append([]liveevents.Event{{Type: liveevents.EventSessionUpdated, Session: view}}, backlog...)
	for _, event := range initial {
		if err := writeStreamEvent(conn, event); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go readStream(conn, closed)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-subscription.Events():
			if !ok {
				return
			}
			if err := writeStreamEvent(conn, event); err != nil {
				log.Debug("chat stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeStreamEvent(conn *websocket.Conn, event liveevents.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(event)
}

// readStream drains client frames so pongs and close frames are processed.
func readStream(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
