package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"
)

// WorkerConfig carries everything the engine worker needs at start.
// Filled from the application config by the caller.
type WorkerConfig struct {
	WorkerBin                       string
	LogLevel                        string
	LogTags                         []string
	ListenIP                        string
	AnnouncedIP                     string
	RTCMinPort                      uint16
	RTCMaxPort                      uint16
	MaxIncomingBitrate              uint32
	InitialAvailableOutgoingBitrate uint32
	MediaCodecs                     []*mediasoup.RtpCodecCapability
}

// DefaultMediaCodecs is the codec set the broadcast negotiates:
// opus for audio, VP8 for video.
func DefaultMediaCodecs() []*mediasoup.RtpCodecCapability {
	return []*mediasoup.RtpCodecCapability{
		{
			Kind:      mediasoup.MediaKindAudio,
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      mediasoup.MediaKindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				XGoogleStartBitrate: 1000,
			},
		},
	}
}

// MediasoupEngine drives a mediasoup worker process through the
// mediasoup-go channel. One worker, one router; transports are created
// on demand by the orchestrator.
type MediasoupEngine struct {
	cfg        WorkerConfig
	worker     *mediasoup.Worker
	router     *mediasoup.Router
	routerCaps json.RawMessage

	mu      sync.Mutex
	closing bool
}

// NewMediasoupEngine starts the worker and creates the router. onDied is
// invoked when the worker terminates unexpectedly; the caller decides
// how fatal that is (the server exits after a grace period).
func NewMediasoupEngine(cfg WorkerConfig, onDied func()) (*MediasoupEngine, error) {
	codecs := cfg.MediaCodecs
	if codecs == nil {
		codecs = DefaultMediaCodecs()
	}

	tags := make([]mediasoup.WorkerLogTag, 0, len(cfg.LogTags))
	for _, t := range cfg.LogTags {
		tags = append(tags, mediasoup.WorkerLogTag(t))
	}

	worker, err := mediasoup.NewWorker(cfg.WorkerBin, func(s *mediasoup.WorkerSettings) {
		s.LogLevel = mediasoup.WorkerLogLevel(cfg.LogLevel)
		s.LogTags = tags
	})
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}

	router, err := worker.CreateRouter(&mediasoup.RouterOptions{MediaCodecs: codecs})
	if err != nil {
		worker.Close()
		return nil, fmt.Errorf("create router: %w", err)
	}

	caps, err := json.Marshal(router.RtpCapabilities())
	if err != nil {
		worker.Close()
		return nil, fmt.Errorf("marshal router capabilities: %w", err)
	}

	e := &MediasoupEngine{
		cfg:        cfg,
		worker:     worker,
		router:     router,
		routerCaps: caps,
	}

	worker.OnClose(func(ctx context.Context) {
		e.mu.Lock()
		closing := e.closing
		e.mu.Unlock()
		if closing {
			return
		}
		log.Error().Str("module", "media").Msg("mediasoup worker died")
		if onDied != nil {
			onDied()
		}
	})

	log.Info().Str("module", "media").
		Uint16("rtc_min_port", cfg.RTCMinPort).
		Uint16("rtc_max_port", cfg.RTCMaxPort).
		Msg("mediasoup worker started")
	return e, nil
}

func (e *MediasoupEngine) RouterRtpCapabilities() json.RawMessage {
	return e.routerCaps
}

func (e *MediasoupEngine) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("bad rtp capabilities")
		return false
	}
	return e.router.CanConsume(producerID, &caps)
}

func (e *MediasoupEngine) CreateTransport(ctx context.Context) (Transport, error) {
	// v2 scopes the RTC port range to each transport listen info rather
	// than the worker.
	ports := mediasoup.TransportPortRange{Min: e.cfg.RTCMinPort, Max: e.cfg.RTCMaxPort}
	listen := []mediasoup.TransportListenInfo{
		{
			Protocol:         mediasoup.TransportProtocolUDP,
			Ip:               e.cfg.ListenIP,
			AnnouncedAddress: e.cfg.AnnouncedIP,
			PortRange:        ports,
		},
		{
			Protocol:         mediasoup.TransportProtocolTCP,
			Ip:               e.cfg.ListenIP,
			AnnouncedAddress: e.cfg.AnnouncedIP,
			PortRange:        ports,
		},
	}

	transport, err := e.router.CreateWebRtcTransportContext(ctx, &mediasoup.WebRtcTransportOptions{
		ListenInfos:                     listen,
		InitialAvailableOutgoingBitrate: e.cfg.InitialAvailableOutgoingBitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	if e.cfg.MaxIncomingBitrate > 0 {
		// Best effort; a failure here degrades quality, not correctness.
		if err := transport.SetMaxIncomingBitrateContext(ctx, e.cfg.MaxIncomingBitrate); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("set max incoming bitrate")
		}
	}

	return &msTransport{transport: transport}, nil
}

func (e *MediasoupEngine) Close() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.worker.Close()
}

type msTransport struct {
	transport *mediasoup.Transport
}

func (t *msTransport) ID() string { return t.transport.Id() }

func (t *msTransport) Info() TransportInfo {
	data := t.transport.Data()
	ice, _ := json.Marshal(data.IceParameters)
	candidates, _ := json.Marshal(data.IceCandidates)
	dtls, _ := json.Marshal(data.DtlsParameters)
	return TransportInfo{
		ID:             t.transport.Id(),
		IceParameters:  ice,
		IceCandidates:  candidates,
		DtlsParameters: dtls,
	}
}

func (t *msTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	var dtls mediasoup.DtlsParameters
	if err := json.Unmarshal(dtlsParameters, &dtls); err != nil {
		return fmt.Errorf("bad dtls parameters: %w", err)
	}
	return t.transport.ConnectContext(ctx, &mediasoup.TransportConnectOptions{
		DtlsParameters: &dtls,
	})
}

func (t *msTransport) Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (Producer, error) {
	var rtp mediasoup.RtpParameters
	if err := json.Unmarshal(rtpParameters, &rtp); err != nil {
		return nil, fmt.Errorf("bad rtp parameters: %w", err)
	}
	producer, err := t.transport.ProduceContext(ctx, &mediasoup.ProducerOptions{
		Kind:          mediasoup.MediaKind(kind),
		RtpParameters: &rtp,
	})
	if err != nil {
		return nil, err
	}
	return &msProducer{producer: producer}, nil
}

func (t *msTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage, paused bool) (Consumer, error) {
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return nil, fmt.Errorf("bad rtp capabilities: %w", err)
	}
	consumer, err := t.transport.ConsumeContext(ctx, &mediasoup.ConsumerOptions{
		ProducerId:      producerID,
		RtpCapabilities: &caps,
		Paused:          paused,
	})
	if err != nil {
		return nil, err
	}
	return &msConsumer{consumer: consumer}, nil
}

func (t *msTransport) Close() { _ = t.transport.Close() }

type msProducer struct {
	producer *mediasoup.Producer
}

func (p *msProducer) ID() string   { return p.producer.Id() }
func (p *msProducer) Kind() string { return string(p.producer.Kind()) }
func (p *msProducer) Close()       { _ = p.producer.Close() }

type msConsumer struct {
	consumer *mediasoup.Consumer
}

func (c *msConsumer) ID() string { return c.consumer.Id() }

func (c *msConsumer) Descriptor() ConsumerDescriptor {
	rtp, _ := json.Marshal(c.consumer.RtpParameters())
	return ConsumerDescriptor{
		ProducerID:     c.consumer.ProducerId(),
		ID:             c.consumer.Id(),
		Kind:           string(c.consumer.Kind()),
		RtpParameters:  rtp,
		Type:           string(c.consumer.Type()),
		ProducerPaused: c.consumer.ProducerPaused(),
	}
}

func (c *msConsumer) Resume(ctx context.Context) error {
	return c.consumer.ResumeContext(ctx)
}

func (c *msConsumer) SetPreferredLayers(ctx context.Context, spatial, temporal int) error {
	tl := uint8(temporal)
	return c.consumer.SetPreferredLayersContext(ctx, mediasoup.ConsumerLayers{
		SpatialLayer:  uint8(spatial),
		TemporalLayer: &tl,
	})
}

func (c *msConsumer) Close() { _ = c.consumer.Close() }
