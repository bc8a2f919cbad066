package ws

import (
	"net/http"
	"time"

	"casino-core/internal/service/crash"
	pkgAuth "casino-core/pkg/auth"
	"casino-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler streams crash round events to connected clients. The socket is
// one-way: game actions go through the HTTP API, the socket only carries
// state.
type Handler struct {
	engine *crash.Engine
}

func NewHandler(engine *crash.Engine) *Handler {
	return &Handler{engine: engine}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

const writeTimeout = 5 * time.Second

func (h *Handler) HandleCrashWS(c *gin.Context) {
	token := c.Query("token")
	claims, err := pkgAuth.ParseUserToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New crash WebSocket connection", zap.Int64("userID", claims.SubjectID))

	subID, events := h.engine.Subscribe()
	defer h.engine.Unsubscribe(subID)

	// Reader goroutine only detects disconnect; inbound frames are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
