// Package media is the capability boundary to the external media engine.
// The signaling layer treats every engine parameter blob (ICE, DTLS, RTP)
// as opaque JSON it forwards between the client and the engine; only the
// adapter in this package knows the engine's concrete types.
package media

import (
	"context"
	"encoding/json"
)

// TransportInfo is the connection material a client needs to set up the
// ICE/DTLS side of a transport. Mirrors the engine's transport params.
type TransportInfo struct {
	ID             string          `json:"id"`
	IceParameters  json.RawMessage `json:"iceParameters"`
	IceCandidates  json.RawMessage `json:"iceCandidates"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

// ConsumerDescriptor is the reply payload of a consume request.
type ConsumerDescriptor struct {
	ProducerID     string          `json:"producerId"`
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	RtpParameters  json.RawMessage `json:"rtpParameters"`
	Type           string          `json:"type"`
	ProducerPaused bool            `json:"producerPaused"`
}

func (d ConsumerDescriptor) Simulcast() bool { return d.Type == "simulcast" }

// Engine is the narrow interface the orchestrator drives. All calls are
// synchronous from the caller's point of view and may fail; engine-side
// failures never take the process down (worker death is handled out of
// band by the adapter's died callback).
type Engine interface {
	// RouterRtpCapabilities returns the router capabilities a client
	// needs before it can negotiate anything.
	RouterRtpCapabilities() json.RawMessage

	// CreateTransport allocates a fresh WebRTC transport on the router.
	CreateTransport(ctx context.Context) (Transport, error)

	// CanConsume reports whether a producer can be consumed with the
	// given client RTP capabilities.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool

	Close()
}

// Transport is one negotiated network endpoint. Producer transports
// carry outbound media, consumer transports inbound; the engine does
// not care which is which, the registries do.
type Transport interface {
	ID() string
	Info() TransportInfo
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (Producer, error)
	Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage, paused bool) (Consumer, error)
	Close()
}

// Producer is one media track published into a room.
type Producer interface {
	ID() string
	Kind() string
	Close()
}

// Consumer is one subscriber's reception of a producer's track.
type Consumer interface {
	ID() string
	Descriptor() ConsumerDescriptor
	Resume(ctx context.Context) error
	SetPreferredLayers(ctx context.Context, spatial, temporal int) error
	Close()
}
