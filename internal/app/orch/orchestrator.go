// Package orch is the protocol state machine behind the signaling
// handlers: it validates inbound events against registry state, drives
// the media engine, and keeps both registries consistent under
// concurrent joins, leaves, and abrupt disconnects.
package orch

import (
	"errors"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

// Structured errors surfaced to the requesting client in the reply
// error field. State inconsistencies are answered, not swallowed.
var (
	ErrNotBound      = errors.New("session not bound to a room")
	ErrNotPublisher  = errors.New("session is not the publisher")
	ErrNotSubscriber = errors.New("session is not a subscriber")
	ErrNoProducer    = errors.New("no producer for this kind")
	ErrNoTransport   = errors.New("transport not created for this kind")
	ErrNoConsumer    = errors.New("no consumer for this kind")
	ErrCannotConsume = errors.New("client capabilities cannot consume this producer")
	ErrSessionStale  = errors.New("session ended while the engine call was in flight")
)

type Orchestrator struct {
	Rooms    *app.RoomRegistry
	Sessions *app.SessionRegistry
	Fabric   *core.Fabric
	Engine   media.Engine
	Policy   app.Policy
}

// Broadcast fans a frame out to the room, sender excluded, and applies
// the backpressure policy to members whose send buffer was full.
func (o *Orchestrator) Broadcast(roomID domain.RoomID, from core.SessionID, frame core.Frame) {
	res := o.Fabric.Publish(roomID, from, frame)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		if o.Policy.OnBackpressure(roomID, slow) == app.KickMember {
			o.Fabric.Kick(roomID, slow)
		}
	}
}
