// Package mediatest provides an in-memory media engine for tests.
package mediatest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

// Engine records every call so tests can assert on engine-side effects
// (resume counts, closed handles, orphan cleanup after races).
type Engine struct {
	mu     sync.Mutex
	nextID int

	// CanConsumeFn overrides the capability check; nil means always true.
	CanConsumeFn func(producerID string, rtpCapabilities json.RawMessage) bool
	// ConsumerType is stamped onto new consumers ("simple" by default).
	ConsumerType string
	// CreateErr makes CreateTransport fail.
	CreateErr error
	// CreateHook runs inside CreateTransport, before it returns; tests
	// use it to interleave a disconnect with an in-flight call.
	CreateHook func()

	Transports []*Transport
	Closed     bool
}

func NewEngine() *Engine {
	return &Engine{ConsumerType: "simple"}
}

func (e *Engine) id(prefix string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return fmt.Sprintf("%s-%d", prefix, e.nextID)
}

func (e *Engine) RouterRtpCapabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":[]}`)
}

func (e *Engine) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	if e.CanConsumeFn != nil {
		return e.CanConsumeFn(producerID, rtpCapabilities)
	}
	return true
}

func (e *Engine) CreateTransport(ctx context.Context) (media.Transport, error) {
	if e.CreateHook != nil {
		e.CreateHook()
	}
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	t := &Transport{eng: e, id: e.id("transport")}
	e.mu.Lock()
	e.Transports = append(e.Transports, t)
	e.mu.Unlock()
	return t, nil
}

func (e *Engine) Close() { e.Closed = true }

type Transport struct {
	eng *Engine
	id  string

	Connected   bool
	Closed      bool
	ProduceErr  error
	ConsumeErr  error
	ProduceHook func()
	ConsumeHook func()

	Producers []*Producer
	Consumers []*Consumer
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Info() media.TransportInfo {
	return media.TransportInfo{
		ID:             t.id,
		IceParameters:  json.RawMessage(`{}`),
		IceCandidates:  json.RawMessage(`[]`),
		DtlsParameters: json.RawMessage(`{}`),
	}
}

func (t *Transport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	t.Connected = true
	return nil
}

func (t *Transport) Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (media.Producer, error) {
	if t.ProduceHook != nil {
		t.ProduceHook()
	}
	if t.ProduceErr != nil {
		return nil, t.ProduceErr
	}
	p := &Producer{id: t.eng.id("producer"), kind: kind}
	t.Producers = append(t.Producers, p)
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage, paused bool) (media.Consumer, error) {
	if t.ConsumeHook != nil {
		t.ConsumeHook()
	}
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	c := &Consumer{
		id:         t.eng.id("consumer"),
		producerID: producerID,
		paused:     paused,
		typ:        t.eng.ConsumerType,
	}
	t.Consumers = append(t.Consumers, c)
	return c, nil
}

func (t *Transport) Close() { t.Closed = true }

type Producer struct {
	id     string
	kind   string
	Closed bool
}

func (p *Producer) ID() string   { return p.id }
func (p *Producer) Kind() string { return p.kind }
func (p *Producer) Close()       { p.Closed = true }

type Consumer struct {
	id         string
	producerID string
	paused     bool
	typ        string

	ResumeCount      int
	PreferredSpatial int
	PreferredTempo   int
	Closed           bool
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) Descriptor() media.ConsumerDescriptor {
	return media.ConsumerDescriptor{
		ProducerID:     c.producerID,
		ID:             c.id,
		Kind:           "video",
		RtpParameters:  json.RawMessage(`{}`),
		Type:           c.typ,
		ProducerPaused: c.paused,
	}
}

func (c *Consumer) Resume(ctx context.Context) error {
	c.ResumeCount++
	return nil
}

func (c *Consumer) SetPreferredLayers(ctx context.Context, spatial, temporal int) error {
	c.PreferredSpatial = spatial
	c.PreferredTempo = temporal
	return nil
}

func (c *Consumer) Close() { c.Closed = true }
