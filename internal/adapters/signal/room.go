package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app/orch"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

var errRateLimited = errors.New("too many room bindings, slow down")

type participantCountUpdate struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Count  int           `json:"count"`
}

type teacherLeft struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

// handleRoomStart binds the connection as the room's publisher and
// (re)initializes the room. The teacher calls this once per lecture.
func (ctl *SignalWSController) handleRoomStart(
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
) {
	type payload struct {
		RoomID string `json:"roomId"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.replyErr(conn, rid, errors.New("bad room-start payload"))
		return
	}
	if !ctl.limiter.Allow(sid) {
		ctl.replyErr(conn, rid, errRateLimited)
		return
	}

	prev := ctl.Orch.StartRoom(sid, conn, domain.RoomID(p.RoomID))
	ctl.notifyDeparture(sid, prev)
	ctl.reply(conn, rid, nil)
}

// handleRoomJoin binds the connection as a subscriber; the room may
// not have been started yet.
func (ctl *SignalWSController) handleRoomJoin(
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
) {
	type payload struct {
		RoomID string `json:"roomId"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.replyErr(conn, rid, errors.New("bad room-join payload"))
		return
	}
	if !ctl.limiter.Allow(sid) {
		ctl.replyErr(conn, rid, errRateLimited)
		return
	}

	roomID := domain.RoomID(p.RoomID)
	count, prev := ctl.Orch.JoinRoom(sid, conn, roomID)
	ctl.notifyDeparture(sid, prev)
	ctl.reply(conn, rid, map[string]any{"count": count})
	ctl.broadcastJSON(roomID, sid, participantCountUpdate{
		Type:   "participantCountUpdate",
		RoomID: roomID,
		Count:  count,
	})
}

func (ctl *SignalWSController) handleGetProducers(
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
) {
	producers, err := ctl.Orch.GetProducers(sid)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, producers)
}

func (ctl *SignalWSController) handleRoomLeave(
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
) {
	ctl.Orch.LeaveRoom(sid)
	ctl.reply(conn, rid, nil)
}

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	ctl.sendJSON(conn, response{Type: "pong"})
}

// onDisconnect runs once per connection, from the read loop's exit.
func (ctl *SignalWSController) onDisconnect(sid core.SessionID) {
	ctl.limiter.Forget(sid)
	dep, ok := ctl.Orch.Disconnect(sid)
	if !ok {
		return
	}
	ctl.notifyDeparture(sid, dep)
}

// notifyDeparture tells the remaining room members what a departure
// did: publisher gone means the room ended, a subscriber gone means a
// new participant count.
func (ctl *SignalWSController) notifyDeparture(sid core.SessionID, dep *orch.Departure) {
	if dep == nil {
		return
	}
	if dep.Ended {
		log.Info().Str("module", "signal").Str("room", string(dep.Room)).Msg("notifying teacher left")
		ctl.broadcastJSON(dep.Room, sid, teacherLeft{Type: "teacherLeft", RoomID: dep.Room})
		return
	}
	ctl.broadcastJSON(dep.Room, sid, participantCountUpdate{
		Type:   "participantCountUpdate",
		RoomID: dep.Room,
		Count:  dep.Count,
	})
}
