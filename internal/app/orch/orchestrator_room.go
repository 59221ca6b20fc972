package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

// Departure describes what a session's removal did to its room, so the
// signaling layer can notify the remaining members.
type Departure struct {
	Room  domain.RoomID
	Role  domain.Role
	Count int  // new participant count, valid for subscriber departures
	Ended bool // the room was torn down with its publisher
}

// StartRoom binds sid as the room's publisher and (re)initializes the
// room. Returns the departure from a previous binding, if sid had one.
func (o *Orchestrator) StartRoom(sid core.SessionID, conn core.SignalConnection, roomID domain.RoomID) *Departure {
	prev := o.rebind(sid)
	o.Rooms.StartRoom(roomID)
	o.Sessions.BindPublisher(sid, roomID)
	o.Fabric.Join(roomID, sid, conn)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("publisher started room")
	return prev
}

// JoinRoom binds sid as a subscriber and returns the room's new
// participant count. The room may not exist yet; the counter starts
// rolling anyway and a later room-start resets it.
func (o *Orchestrator) JoinRoom(sid core.SessionID, conn core.SignalConnection, roomID domain.RoomID) (int, *Departure) {
	prev := o.rebind(sid)
	o.Sessions.BindSubscriber(sid, roomID)
	count := o.Rooms.IncrementParticipant(roomID)
	o.Fabric.Join(roomID, sid, conn)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Int("count", count).Msg("subscriber joined room")
	return count, prev
}

// GetProducers snapshots the bound room's kind -> producer id mapping.
func (o *Orchestrator) GetProducers(sid core.SessionID) (map[domain.MediaKind]string, error) {
	roomID, _, ok := o.Sessions.Lookup(sid)
	if !ok {
		return nil, ErrNotBound
	}
	return o.Rooms.Producers(roomID), nil
}

// LeaveRoom removes the session from the room's broadcast group only;
// registry state stays until disconnect or rebind.
func (o *Orchestrator) LeaveRoom(sid core.SessionID) {
	roomID, _, ok := o.Sessions.Lookup(sid)
	if !ok {
		return
	}
	o.Fabric.Leave(roomID, sid)
}

// Disconnect unbinds the session and reconciles both registries from
// the session's own recorded identifiers. Other sessions' state in the
// same room is never touched by a subscriber departure.
func (o *Orchestrator) Disconnect(sid core.SessionID) (*Departure, bool) {
	rec, ok := o.Sessions.Unbind(sid)
	if !ok {
		return nil, false
	}
	dep := o.cleanup(sid, rec)
	return &dep, true
}

// rebind tears down a session's previous binding: a new room-start or
// room-join for an already-bound identity replaces it, no merge.
func (o *Orchestrator) rebind(sid core.SessionID) *Departure {
	rec, ok := o.Sessions.Unbind(sid)
	if !ok {
		return nil
	}
	dep := o.cleanup(sid, rec)
	return &dep
}

func (o *Orchestrator) cleanup(sid core.SessionID, rec *app.SessionRecord) Departure {
	dep := Departure{Room: rec.Room, Role: rec.Role}
	o.Fabric.Leave(rec.Room, sid)

	switch rec.Role {
	case domain.RoleSubscriber:
		for kind, kr := range rec.Kinds {
			if kr.EntityID != "" {
				if c := o.Rooms.RemoveConsumer(rec.Room, kind, kr.EntityID); c != nil {
					c.Close()
				}
			}
			if kr.TransportID != "" {
				if t := o.Rooms.RemoveConsumerTransport(rec.Room, kind, kr.TransportID); t != nil {
					t.Close()
				}
			}
		}
		dep.Count = o.Rooms.DecrementParticipant(rec.Room)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(rec.Room)).Int("count", dep.Count).Msg("subscriber left")

	case domain.RolePublisher:
		// Publisher departure ends the room: no half-alive rooms with
		// stale producers. Consumer-side state of the room is dropped
		// with it; subscribers clean their own records on disconnect.
		dep.Ended = true
		if room, ok := o.Rooms.StopRoom(rec.Room); ok {
			producers, transports := room.DrainPublisher()
			for _, p := range producers {
				p.Close()
			}
			for _, t := range transports {
				t.Close()
			}
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(rec.Room)).Msg("publisher left, room ended")
	}
	return dep
}
