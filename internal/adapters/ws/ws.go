package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/app"
	"github.com/avolkov/parlor/internal/config"
	"github.com/avolkov/parlor/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const sendBuffer = 64

// Controller owns the WS endpoint: it upgrades connections, binds them into
// the hub, and runs one read/write pump pair per client.
type Controller struct {
	cfg     *config.Config
	hub     *app.Hub
	limiter *MessageRateLimiter
}

func NewController(cfg *config.Config, hub *app.Hub) *Controller {
	return &Controller{
		cfg:     cfg,
		hub:     hub,
		limiter: NewMessageRateLimiter(cfg.MsgRate, cfg.MsgRateWindow),
	}
}

// wsConn adapts a websocket connection to core.Sink. TrySend never blocks:
// a full send buffer is reported as backpressure and the frame is dropped
// for this client only.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
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

func (c *wsConn) Close() {
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

// HandleWS upgrades the request and services the connection until it closes.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	sid := core.ConnID(uuid.NewString())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "ws").Str("cid", string(sid)).Msg("new WS connection")

	wc := &wsConn{
		conn: conn,
		send: make(chan core.Frame, sendBuffer),
	}
	ctl.hub.Conns.Bind(sid, wc)
	sess := ctl.hub.NewSession(sid)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, wc)

	// Let the new client render the room picker before it joins anything.
	ctl.hub.Bcast.ToConn(sid, app.EventRoomsList, ctl.hub.Rooms.RoomNames())

	go ctl.readPump(ctx, cancel, sid, sess, wc)
}
