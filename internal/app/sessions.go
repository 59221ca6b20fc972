package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// KindRecord is the per-media-kind state a session owns: the transport
// it created and the entity (producer or consumer) it created on it.
type KindRecord struct {
	TransportID string
	EntityID    string
}

// SessionRecord is a session's full binding: one room, one role, and
// one KindRecord per media kind. Generation increases on every rebind
// of the same session identity; engine-call results carrying a stale
// generation are discarded by the orchestrator.
type SessionRecord struct {
	Room       domain.RoomID
	Role       domain.Role
	Generation uint64
	Kinds      map[domain.MediaKind]*KindRecord
}

// SessionRegistry maps connected session identities to their binding.
// A session never spans two rooms; binding again replaces the old
// record entirely (no merge).
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*SessionRecord
	gen      uint64
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[core.SessionID]*SessionRecord)}
}

func (r *SessionRegistry) bind(sid core.SessionID, roomID domain.RoomID, role domain.Role) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	kinds := make(map[domain.MediaKind]*KindRecord, len(domain.Kinds))
	for _, k := range domain.Kinds {
		kinds[k] = &KindRecord{}
	}
	r.sessions[sid] = &SessionRecord{
		Room:       roomID,
		Role:       role,
		Generation: r.gen,
		Kinds:      kinds,
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("room", string(roomID)).Stringer("role", role).Msg("bound session")
	return r.gen
}

func (r *SessionRegistry) BindPublisher(sid core.SessionID, roomID domain.RoomID) uint64 {
	return r.bind(sid, roomID, domain.RolePublisher)
}

func (r *SessionRegistry) BindSubscriber(sid core.SessionID, roomID domain.RoomID) uint64 {
	return r.bind(sid, roomID, domain.RoleSubscriber)
}

// RecordTransport stores the transport id a session created for a
// kind. Fails when the session was never bound, which protects against
// out-of-order events such as produce before room-start.
func (r *SessionRegistry) RecordTransport(sid core.SessionID, kind domain.MediaKind, transportID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	rec.Kinds[kind].TransportID = transportID
	return nil
}

func (r *SessionRegistry) RecordEntity(sid core.SessionID, kind domain.MediaKind, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	rec.Kinds[kind].EntityID = entityID
	return nil
}

// Lookup returns the session's room and role without the kind records.
func (r *SessionRegistry) Lookup(sid core.SessionID) (domain.RoomID, domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return "", 0, false
	}
	return rec.Room, rec.Role, true
}

// KindRecord returns a copy of the session's record for one kind.
func (r *SessionRegistry) KindRecord(sid core.SessionID, kind domain.MediaKind) (KindRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return KindRecord{}, false
	}
	return *rec.Kinds[kind], true
}

func (r *SessionRegistry) Generation(sid core.SessionID) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return 0, false
	}
	return rec.Generation, true
}

// Matches reports whether the session still carries the given
// generation. False when it was unbound or rebound in the meantime.
func (r *SessionRegistry) Matches(sid core.SessionID, gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sid]
	return ok && rec.Generation == gen
}

// Unbind atomically removes and returns the session's full record.
// Called exactly once per binding, at disconnect or rebind, to drive
// cleanup from the session's own recorded identifiers.
func (r *SessionRegistry) Unbind(sid core.SessionID) (*SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("room", string(rec.Room)).Msg("unbind session")
	return rec, true
}
