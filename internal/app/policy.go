package app

import (
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a room member whose send buffer is
// full during a broadcast.
type Policy interface {
	OnBackpressure(roomID domain.RoomID, sid core.SessionID) BackpressureAction
}

// SimplePolicy disconnects slow members; a lagging student reconnects
// and re-subscribes rather than stalling the room's fan-out.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.RoomID, core.SessionID) BackpressureAction {
	return KickMember
}
