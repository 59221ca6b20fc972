package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// Fabric is the room-scoped broadcast fan-out: sessions join a room's
// group and publishes go to every member except the sender. Group
// membership is independent of registry state; a member stays in the
// group until it leaves or its socket dies, even if the room's
// registry state was torn down.
type Fabric struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[SessionID]SignalConnection
}

func NewFabric() *Fabric {
	return &Fabric{rooms: make(map[domain.RoomID]map[SessionID]SignalConnection)}
}

func (f *Fabric) Join(roomID domain.RoomID, sid SessionID, conn SignalConnection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.rooms[roomID]
	if !ok {
		group = make(map[SessionID]SignalConnection)
		f.rooms[roomID] = group
	}
	group[sid] = conn
	log.Debug().Str("module", "core.fabric").Str("room", string(roomID)).Str("sid", string(sid)).Msg("joined group")
}

func (f *Fabric) Leave(roomID domain.RoomID, sid SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.rooms[roomID]
	if !ok {
		return
	}
	delete(group, sid)
	if len(group) == 0 {
		delete(f.rooms, roomID)
	}
}

func (f *Fabric) Members(roomID domain.RoomID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms[roomID])
}

// Publish fans a frame out to every group member except the sender.
// Frames to one receiver keep the order they were published in; no
// ordering holds across senders.
func (f *Fabric) Publish(roomID domain.RoomID, from SessionID, data Frame) PublishResult {
	f.mu.RLock()
	defer f.mu.RUnlock()
	res := PublishResult{}
	for sid, conn := range f.rooms[roomID] {
		if sid == from {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.fabric").Str("room", string(roomID)).Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("publish result")
	return res
}

// Kick closes a member's connection and removes it from the group.
// The session's own read loop drives the rest of the cleanup.
func (f *Fabric) Kick(roomID domain.RoomID, sid SessionID) {
	f.mu.Lock()
	conn := f.rooms[roomID][sid]
	delete(f.rooms[roomID], sid)
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
