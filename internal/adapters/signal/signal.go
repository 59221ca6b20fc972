// Package signal is the WebSocket front end of the signaling protocol:
// one controller instance serves all connections, one connection is one
// session driven through the orchestrator's state machine.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app/orch"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// Binds a session at most this often; floods of room-start/room-join
// thrash registry state for no reason.
const (
	bindLimit    = 10
	bindInterval = 10 * time.Second
)

type SignalWSController struct {
	Orch    *orch.Orchestrator
	limiter *BindRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		limiter: NewBindRateLimiter(bindLimit, bindInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
