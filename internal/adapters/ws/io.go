package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/app"
	"github.com/avolkov/parlor/internal/core"
)

const writeWait = 5 * time.Second

// envelope is the client-to-server wire format. Requests that expect an
// acknowledgement carry a client-chosen id, echoed back in the ack frame.
type envelope struct {
	Type string          `json:"type"`
	ID   int64           `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ackFrame struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Data any    `json:"data,omitempty"`
}

func (ctl *Controller) writePump(ctx context.Context, sid core.ConnID, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Str("cid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "ws").Str("cid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.ConnID, sess *app.Session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("cid", string(sid)).Msg("readPump closing")
		cancel()
		ctl.hub.Conns.Unbind(sid)
		sess.Disconnect()
		ctl.limiter.Forget(sid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Str("cid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws").Str("cid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handle(sid, sess, c, data)
		}
	}
}

func (ctl *Controller) handle(sid core.ConnID, sess *app.Session, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("cid", string(sid)).Msg("bad json")
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoin(sess, c, env)
	case "chat message":
		ctl.handleMessage(sid, sess, env)
	case "get-users":
		ctl.sendAck(c, env.ID, sess.Users())
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) handleJoin(sess *app.Session, c *wsConn, env envelope) {
	var req struct {
		Room string `json:"room"`
		Name string `json:"name"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			log.Error().Err(err).Str("module", "ws").Msg("bad join payload")
			return
		}
	}
	ctl.sendAck(c, env.ID, sess.Join(req.Room, req.Name))
}

func (ctl *Controller) handleMessage(sid core.ConnID, sess *app.Session, env envelope) {
	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "ws").Str("cid", string(sid)).Msg("message rate exceeded, dropping")
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			log.Error().Err(err).Str("module", "ws").Msg("bad message payload")
			return
		}
	}
	sess.Send(req.Message)
}

func (ctl *Controller) sendAck(c *wsConn, id int64, payload any) {
	buf, err := json.Marshal(ackFrame{Type: "ack", ID: id, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendAck marshal")
		return
	}
	_ = c.TrySend(core.Frame(buf))
}
