package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

// Room is the per-room slot bookkeeping: at most one producer and one
// producer transport per media kind, any number of consumer transports
// and consumers per kind (one per subscribing session), and the
// subscriber counter. It is threadsafe; it never closes engine-owned
// resources itself, removal returns the handle so the caller can.
type Room struct {
	id domain.RoomID

	mu                 sync.RWMutex
	producers          map[domain.MediaKind]media.Producer
	producerTransports map[domain.MediaKind]media.Transport
	consumerTransports map[domain.MediaKind]map[string]media.Transport
	consumers          map[domain.MediaKind]map[string]media.Consumer
	participants       int
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		id:                 id,
		producers:          make(map[domain.MediaKind]media.Producer),
		producerTransports: make(map[domain.MediaKind]media.Transport),
		consumerTransports: make(map[domain.MediaKind]map[string]media.Transport),
		consumers:          make(map[domain.MediaKind]map[string]media.Consumer),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// SetProducer installs the producer for a kind and returns the one it
// replaced, if any. Last publish wins; the caller owns closing the
// previous engine-side producer.
func (r *Room) SetProducer(kind domain.MediaKind, p media.Producer) media.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.producers[kind]
	r.producers[kind] = p
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Stringer("kind", kind).Str("producer", p.ID()).Msg("producer set")
	return prev
}

func (r *Room) Producer(kind domain.MediaKind) (media.Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[kind]
	return p, ok
}

// RemoveProducer is an idempotent cleanup: removing an absent slot is a
// no-op and returns nil.
func (r *Room) RemoveProducer(kind domain.MediaKind) media.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.producers[kind]
	delete(r.producers, kind)
	return p
}

// Producers returns a read-only snapshot of kind -> producer id.
func (r *Room) Producers() map[domain.MediaKind]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.MediaKind]string, len(r.producers))
	for kind, p := range r.producers {
		out[kind] = p.ID()
	}
	return out
}

func (r *Room) SetProducerTransport(kind domain.MediaKind, t media.Transport) media.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.producerTransports[kind]
	r.producerTransports[kind] = t
	return prev
}

func (r *Room) ProducerTransport(kind domain.MediaKind) (media.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.producerTransports[kind]
	return t, ok
}

func (r *Room) AddConsumerTransport(kind domain.MediaKind, t media.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.consumerTransports[kind]
	if !ok {
		m = make(map[string]media.Transport)
		r.consumerTransports[kind] = m
	}
	m[t.ID()] = t
}

func (r *Room) ConsumerTransport(kind domain.MediaKind, transportID string) (media.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.consumerTransports[kind][transportID]
	return t, ok
}

func (r *Room) RemoveConsumerTransport(kind domain.MediaKind, transportID string) media.Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.consumerTransports[kind][transportID]
	delete(r.consumerTransports[kind], transportID)
	return t
}

func (r *Room) AddConsumer(kind domain.MediaKind, c media.Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.consumers[kind]
	if !ok {
		m = make(map[string]media.Consumer)
		r.consumers[kind] = m
	}
	m[c.ID()] = c
}

func (r *Room) Consumer(kind domain.MediaKind, consumerID string) (media.Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[kind][consumerID]
	return c, ok
}

func (r *Room) RemoveConsumer(kind domain.MediaKind, consumerID string) media.Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.consumers[kind][consumerID]
	delete(r.consumers[kind], consumerID)
	return c
}

// AddParticipant increments the subscriber counter and returns the new
// count so the caller can broadcast it.
func (r *Room) AddParticipant() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants++
	return r.participants
}

// RemoveParticipant saturates at zero instead of going negative.
func (r *Room) RemoveParticipant() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.participants > 0 {
		r.participants--
	}
	return r.participants
}

func (r *Room) Participants() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants
}

// DrainPublisher removes and returns every producer and producer
// transport. Used once, when the room ends with its publisher.
func (r *Room) DrainPublisher() (producers []media.Producer, transports []media.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, p := range r.producers {
		producers = append(producers, p)
		delete(r.producers, kind)
	}
	for kind, t := range r.producerTransports {
		transports = append(transports, t)
		delete(r.producerTransports, kind)
	}
	return producers, transports
}
