package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRegistry owns the set of active rooms. Structural removals on
// unknown rooms or absent entries are no-ops; installing state into a
// room that was never started is an error.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[domain.RoomID]*core.Room)}
}

// StartRoom (re)initializes the room: all slot maps empty, counter at
// zero. Idempotent by overwrite; prior state for the id is discarded,
// matching the single-publisher-per-room model.
func (r *RoomRegistry) StartRoom(id domain.RoomID) *core.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := core.NewRoom(id)
	r.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room started")
	return room
}

func (r *RoomRegistry) Room(id domain.RoomID) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// getOrCreate is used by subscriber-side joins: a student may join
// before the teacher started the room, and the later room-start
// overwrite resets whatever state accumulated.
func (r *RoomRegistry) getOrCreate(id domain.RoomID) *core.Room {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return room
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[id]; ok {
		return room
	}
	room = core.NewRoom(id)
	r.rooms[id] = room
	return room
}

// Producers returns the kind -> producer id snapshot; empty for an
// unknown room, never an error.
func (r *RoomRegistry) Producers(id domain.RoomID) map[domain.MediaKind]string {
	room, ok := r.Room(id)
	if !ok {
		return map[domain.MediaKind]string{}
	}
	return room.Producers()
}

func (r *RoomRegistry) SetProducer(id domain.RoomID, kind domain.MediaKind, p media.Producer) (media.Producer, error) {
	room, ok := r.Room(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.SetProducer(kind, p), nil
}

func (r *RoomRegistry) RemoveProducer(id domain.RoomID, kind domain.MediaKind) media.Producer {
	room, ok := r.Room(id)
	if !ok {
		return nil
	}
	return room.RemoveProducer(kind)
}

func (r *RoomRegistry) SetProducerTransport(id domain.RoomID, kind domain.MediaKind, t media.Transport) (media.Transport, error) {
	room, ok := r.Room(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.SetProducerTransport(kind, t), nil
}

func (r *RoomRegistry) AddConsumerTransport(id domain.RoomID, kind domain.MediaKind, t media.Transport) error {
	room, ok := r.Room(id)
	if !ok {
		return ErrRoomNotFound
	}
	room.AddConsumerTransport(kind, t)
	return nil
}

func (r *RoomRegistry) RemoveConsumerTransport(id domain.RoomID, kind domain.MediaKind, transportID string) media.Transport {
	room, ok := r.Room(id)
	if !ok {
		return nil
	}
	return room.RemoveConsumerTransport(kind, transportID)
}

func (r *RoomRegistry) AddConsumer(id domain.RoomID, kind domain.MediaKind, c media.Consumer) error {
	room, ok := r.Room(id)
	if !ok {
		return ErrRoomNotFound
	}
	room.AddConsumer(kind, c)
	return nil
}

func (r *RoomRegistry) RemoveConsumer(id domain.RoomID, kind domain.MediaKind, consumerID string) media.Consumer {
	room, ok := r.Room(id)
	if !ok {
		return nil
	}
	return room.RemoveConsumer(kind, consumerID)
}

// IncrementParticipant creates the room on demand: joins may precede
// the publisher's room-start. Returns the new count.
func (r *RoomRegistry) IncrementParticipant(id domain.RoomID) int {
	return r.getOrCreate(id).AddParticipant()
}

// DecrementParticipant saturates at zero; unknown rooms stay unknown.
func (r *RoomRegistry) DecrementParticipant(id domain.RoomID) int {
	room, ok := r.Room(id)
	if !ok {
		return 0
	}
	return room.RemoveParticipant()
}

// StopRoom removes the room and returns it so the caller can close the
// engine-side state it still holds.
func (r *RoomRegistry) StopRoom(id domain.RoomID) (*core.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	delete(r.rooms, id)
	if ok {
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
	}
	return room, ok
}
