package orch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

// Fixed simulcast layer preference: top spatial and temporal layer, no
// adaptive switching in this design.
const (
	preferredSpatialLayer  = 2
	preferredTemporalLayer = 2
)

func (o *Orchestrator) RouterRtpCapabilities() json.RawMessage {
	return o.Engine.RouterRtpCapabilities()
}

// CreateProducerTransport allocates the publisher's transport for one
// media kind and records it in both registries.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, sid core.SessionID, kind domain.MediaKind) (media.TransportInfo, error) {
	roomID, role, ok := o.Sessions.Lookup(sid)
	if !ok {
		return media.TransportInfo{}, ErrNotBound
	}
	if role != domain.RolePublisher {
		return media.TransportInfo{}, ErrNotPublisher
	}

	gen, _ := o.Sessions.Generation(sid)
	transport, err := o.Engine.CreateTransport(ctx)
	if err != nil {
		return media.TransportInfo{}, fmt.Errorf("engine: %w", err)
	}
	if !o.Sessions.Matches(sid, gen) {
		transport.Close()
		return media.TransportInfo{}, ErrSessionStale
	}

	prev, err := o.Rooms.SetProducerTransport(roomID, kind, transport)
	if err != nil {
		transport.Close()
		return media.TransportInfo{}, err
	}
	if prev != nil {
		prev.Close()
	}
	if err := o.Sessions.RecordTransport(sid, kind, transport.ID()); err != nil {
		return media.TransportInfo{}, err
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Stringer("kind", kind).Str("transport", transport.ID()).Msg("producer transport created")
	return transport.Info(), nil
}

// CreateConsumerTransport is the subscriber-side counterpart; a room
// holds one consumer transport per kind per subscribing session.
func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, sid core.SessionID, kind domain.MediaKind) (media.TransportInfo, error) {
	roomID, role, ok := o.Sessions.Lookup(sid)
	if !ok {
		return media.TransportInfo{}, ErrNotBound
	}
	if role != domain.RoleSubscriber {
		return media.TransportInfo{}, ErrNotSubscriber
	}

	gen, _ := o.Sessions.Generation(sid)
	transport, err := o.Engine.CreateTransport(ctx)
	if err != nil {
		return media.TransportInfo{}, fmt.Errorf("engine: %w", err)
	}
	if !o.Sessions.Matches(sid, gen) {
		transport.Close()
		return media.TransportInfo{}, ErrSessionStale
	}

	if err := o.Rooms.AddConsumerTransport(roomID, kind, transport); err != nil {
		transport.Close()
		return media.TransportInfo{}, err
	}
	if err := o.Sessions.RecordTransport(sid, kind, transport.ID()); err != nil {
		return media.TransportInfo{}, err
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Stringer("kind", kind).Str("transport", transport.ID()).Msg("consumer transport created")
	return transport.Info(), nil
}

// ConnectProducerTransport finishes the DTLS handshake on the
// publisher's transport for one kind.
func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, sid core.SessionID, kind domain.MediaKind, dtlsParameters json.RawMessage) error {
	transport, err := o.producerTransport(sid, kind)
	if err != nil {
		return err
	}
	return transport.Connect(ctx, dtlsParameters)
}

func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, sid core.SessionID, kind domain.MediaKind, dtlsParameters json.RawMessage) error {
	transport, err := o.consumerTransport(sid, kind)
	if err != nil {
		return err
	}
	return transport.Connect(ctx, dtlsParameters)
}

// Produce creates the room's producer for one kind on the publisher's
// previously created transport. Last publish wins: a replaced producer
// (screen-share restart) is closed, not leaked.
func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, kind domain.MediaKind, rtpParameters json.RawMessage) (string, error) {
	roomID, _, ok := o.Sessions.Lookup(sid)
	if !ok {
		return "", ErrNotBound
	}
	transport, err := o.producerTransport(sid, kind)
	if err != nil {
		return "", err
	}

	gen, _ := o.Sessions.Generation(sid)
	producer, err := transport.Produce(ctx, kind.EngineKind(), rtpParameters)
	if err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}
	if !o.Sessions.Matches(sid, gen) {
		producer.Close()
		return "", ErrSessionStale
	}

	prev, err := o.Rooms.SetProducer(roomID, kind, producer)
	if err != nil {
		producer.Close()
		return "", err
	}
	if prev != nil {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Stringer("kind", kind).Str("replaced", prev.ID()).Msg("producer replaced")
		prev.Close()
	}
	if err := o.Sessions.RecordEntity(sid, kind, producer.ID()); err != nil {
		return "", err
	}
	return producer.ID(), nil
}

// Consume creates a consumer for the room's producer of one kind on
// the subscriber's own transport. Video consumers start paused so the
// client can prime rendering before the first frame burst; simulcast
// consumers get the fixed preferred layer applied immediately.
func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, kind domain.MediaKind, rtpCapabilities json.RawMessage) (media.ConsumerDescriptor, error) {
	roomID, _, ok := o.Sessions.Lookup(sid)
	if !ok {
		return media.ConsumerDescriptor{}, ErrNotBound
	}
	room, ok := o.Rooms.Room(roomID)
	if !ok {
		return media.ConsumerDescriptor{}, ErrNoProducer
	}
	producer, ok := room.Producer(kind)
	if !ok {
		return media.ConsumerDescriptor{}, ErrNoProducer
	}
	if !o.Engine.CanConsume(producer.ID(), rtpCapabilities) {
		log.Warn().Str("module", "orch").Str("room", string(roomID)).Stringer("kind", kind).Str("producer", producer.ID()).Msg("cannot consume")
		return media.ConsumerDescriptor{}, ErrCannotConsume
	}
	transport, err := o.consumerTransport(sid, kind)
	if err != nil {
		return media.ConsumerDescriptor{}, err
	}

	gen, _ := o.Sessions.Generation(sid)
	consumer, err := transport.Consume(ctx, producer.ID(), rtpCapabilities, kind.IsVideo())
	if err != nil {
		return media.ConsumerDescriptor{}, fmt.Errorf("engine: %w", err)
	}
	if !o.Sessions.Matches(sid, gen) {
		consumer.Close()
		return media.ConsumerDescriptor{}, ErrSessionStale
	}

	desc := consumer.Descriptor()
	if desc.Simulcast() {
		if err := consumer.SetPreferredLayers(ctx, preferredSpatialLayer, preferredTemporalLayer); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("consumer", desc.ID).Msg("set preferred layers")
		}
	}

	if err := o.Rooms.AddConsumer(roomID, kind, consumer); err != nil {
		consumer.Close()
		return media.ConsumerDescriptor{}, err
	}
	if err := o.Sessions.RecordEntity(sid, kind, consumer.ID()); err != nil {
		return media.ConsumerDescriptor{}, err
	}
	return desc, nil
}

// Resume unpauses the session's consumer for one kind.
func (o *Orchestrator) Resume(ctx context.Context, sid core.SessionID, kind domain.MediaKind) error {
	roomID, _, ok := o.Sessions.Lookup(sid)
	if !ok {
		return ErrNotBound
	}
	rec, ok := o.Sessions.KindRecord(sid, kind)
	if !ok || rec.EntityID == "" {
		return ErrNoConsumer
	}
	room, ok := o.Rooms.Room(roomID)
	if !ok {
		return ErrNoConsumer
	}
	consumer, ok := room.Consumer(kind, rec.EntityID)
	if !ok {
		return ErrNoConsumer
	}
	return consumer.Resume(ctx)
}

// producerTransport resolves the publisher's transport for a kind via
// the session's own recorded id, so cleanup and validation never scan
// other sessions' state.
func (o *Orchestrator) producerTransport(sid core.SessionID, kind domain.MediaKind) (media.Transport, error) {
	roomID, role, ok := o.Sessions.Lookup(sid)
	if !ok {
		return nil, ErrNotBound
	}
	if role != domain.RolePublisher {
		return nil, ErrNotPublisher
	}
	rec, ok := o.Sessions.KindRecord(sid, kind)
	if !ok || rec.TransportID == "" {
		return nil, ErrNoTransport
	}
	room, ok := o.Rooms.Room(roomID)
	if !ok {
		return nil, ErrNoTransport
	}
	transport, ok := room.ProducerTransport(kind)
	if !ok || transport.ID() != rec.TransportID {
		return nil, ErrNoTransport
	}
	return transport, nil
}

func (o *Orchestrator) consumerTransport(sid core.SessionID, kind domain.MediaKind) (media.Transport, error) {
	roomID, role, ok := o.Sessions.Lookup(sid)
	if !ok {
		return nil, ErrNotBound
	}
	if role != domain.RoleSubscriber {
		return nil, ErrNotSubscriber
	}
	rec, ok := o.Sessions.KindRecord(sid, kind)
	if !ok || rec.TransportID == "" {
		return nil, ErrNoTransport
	}
	room, ok := o.Rooms.Room(roomID)
	if !ok {
		return nil, ErrNoTransport
	}
	transport, ok := room.ConsumerTransport(kind, rec.TransportID)
	if !ok {
		return nil, ErrNoTransport
	}
	return transport, nil
}
