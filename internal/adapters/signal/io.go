package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.onDisconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

// envelope carries the fields every request shares; handlers decode
// their own payload on top of it.
type envelope struct {
	Type string `json:"type"`
	Rid  string `json:"rid"`
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c core.SignalConnection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "room-start":
		ctl.handleRoomStart(sid, c, env.Rid, data)
	case "room-join":
		ctl.handleRoomJoin(sid, c, env.Rid, data)
	case "get-producers":
		ctl.handleGetProducers(sid, c, env.Rid)
	case "room-leave":
		ctl.handleRoomLeave(sid, c, env.Rid)
	case "router-rtp-capabilities":
		ctl.handleRouterRtpCapabilities(c, env.Rid)
	case "create-producer-transport":
		ctl.handleCreateTransport(ctx, sid, c, env.Rid, data, true)
	case "create-consumer-transport":
		ctl.handleCreateTransport(ctx, sid, c, env.Rid, data, false)
	case "connect-producer-transport":
		ctl.handleConnectTransport(ctx, sid, c, env.Rid, data, true)
	case "connect-consumer-transport":
		ctl.handleConnectTransport(ctx, sid, c, env.Rid, data, false)
	case "produce":
		ctl.handleProduce(ctx, sid, c, env.Rid, data)
	case "consume":
		ctl.handleConsume(ctx, sid, c, env.Rid, data)
	case "resume":
		ctl.handleResume(ctx, sid, c, env.Rid, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

type response struct {
	Type  string `json:"type"`
	Rid   string `json:"rid,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (ctl *SignalWSController) reply(c core.SignalConnection, rid string, data any) {
	ctl.sendJSON(c, response{Type: "response", Rid: rid, Data: data})
}

func (ctl *SignalWSController) replyErr(c core.SignalConnection, rid string, err error) {
	ctl.sendJSON(c, response{Type: "response", Rid: rid, Error: err.Error()})
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) broadcastJSON(roomID domain.RoomID, from core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Orch.Broadcast(roomID, from, b)
}
