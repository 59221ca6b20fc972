package orch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app/orch"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media/mediatest"
)

type fakeConn struct {
	mu     sync.Mutex
	Frames []core.Frame
	Full   bool
	Closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Full {
		return errors.New("backpressure")
	}
	c.Frames = append(c.Frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

func newOrchestrator() (*orch.Orchestrator, *mediatest.Engine) {
	eng := mediatest.NewEngine()
	return &orch.Orchestrator{
		Rooms:    app.NewRoomRegistry(),
		Sessions: app.NewSessionRegistry(),
		Fabric:   core.NewFabric(),
		Engine:   eng,
		Policy:   app.SimplePolicy{},
	}, eng
}

// publisherWith sets up a started room with a connected producer
// transport and, optionally, a producer for each given kind.
func publisherWith(t *testing.T, o *orch.Orchestrator, room domain.RoomID, kinds ...domain.MediaKind) (core.SessionID, *fakeConn) {
	t.Helper()
	ctx := context.Background()
	conn := &fakeConn{}
	o.StartRoom("sid-teacher", conn, room)
	for _, kind := range kinds {
		_, err := o.CreateProducerTransport(ctx, "sid-teacher", kind)
		require.NoError(t, err)
		require.NoError(t, o.ConnectProducerTransport(ctx, "sid-teacher", kind, nil))
		_, err = o.Produce(ctx, "sid-teacher", kind, nil)
		require.NoError(t, err)
	}
	return "sid-teacher", conn
}

func subscriberWith(t *testing.T, o *orch.Orchestrator, sid core.SessionID, room domain.RoomID, kinds ...domain.MediaKind) *fakeConn {
	t.Helper()
	ctx := context.Background()
	conn := &fakeConn{}
	o.JoinRoom(sid, conn, room)
	for _, kind := range kinds {
		_, err := o.CreateConsumerTransport(ctx, sid, kind)
		require.NoError(t, err)
		require.NoError(t, o.ConnectConsumerTransport(ctx, sid, kind, nil))
		_, err = o.Consume(ctx, sid, kind, nil)
		require.NoError(t, err)
	}
	return conn
}

func TestStartRoomHasEmptySlots(t *testing.T) {
	o, _ := newOrchestrator()
	dep := o.StartRoom("sid-teacher", &fakeConn{}, "math101")
	require.Nil(t, dep, "fresh session has no previous binding")

	room, ok := o.Rooms.Room("math101")
	require.True(t, ok)
	require.Empty(t, room.Producers())
	require.Equal(t, 0, room.Participants())
}

func TestJoinCountsParticipants(t *testing.T) {
	o, _ := newOrchestrator()
	o.StartRoom("sid-teacher", &fakeConn{}, "math101")

	count, dep := o.JoinRoom("sid-s1", &fakeConn{}, "math101")
	require.Nil(t, dep)
	require.Equal(t, 1, count)

	count, _ = o.JoinRoom("sid-s2", &fakeConn{}, "math101")
	require.Equal(t, 2, count)
}

func TestProduceRoundTrip(t *testing.T) {
	o, _ := newOrchestrator()
	ctx := context.Background()
	o.StartRoom("sid-teacher", &fakeConn{}, "math101")

	info, err := o.CreateProducerTransport(ctx, "sid-teacher", domain.WebcamVideo)
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)

	require.NoError(t, o.ConnectProducerTransport(ctx, "sid-teacher", domain.WebcamVideo, nil))

	producerID, err := o.Produce(ctx, "sid-teacher", domain.WebcamVideo, nil)
	require.NoError(t, err)
	require.NotEmpty(t, producerID)

	producers, err := o.GetProducers("sid-teacher")
	require.NoError(t, err)
	require.Equal(t, map[domain.MediaKind]string{domain.WebcamVideo: producerID}, producers)
}

func TestConsumeStartsVideoPausedAndResumesOnce(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()
	publisherWith(t, o, "math101", domain.WebcamVideo)

	conn := &fakeConn{}
	o.JoinRoom("sid-student", conn, "math101")
	_, err := o.CreateConsumerTransport(ctx, "sid-student", domain.WebcamVideo)
	require.NoError(t, err)
	require.NoError(t, o.ConnectConsumerTransport(ctx, "sid-student", domain.WebcamVideo, nil))

	desc, err := o.Consume(ctx, "sid-student", domain.WebcamVideo, nil)
	require.NoError(t, err)
	require.True(t, desc.ProducerPaused, "video consumers start paused")

	require.NoError(t, o.Resume(ctx, "sid-student", domain.WebcamVideo))

	var resumed int
	for _, tr := range eng.Transports {
		for _, c := range tr.Consumers {
			if c.ID() == desc.ID {
				resumed = c.ResumeCount
			}
		}
	}
	require.Equal(t, 1, resumed, "exactly one engine resume for the consumer")
}

func TestConsumeAudioNotPaused(t *testing.T) {
	o, _ := newOrchestrator()
	ctx := context.Background()
	publisherWith(t, o, "math101", domain.WebcamAudio)

	o.JoinRoom("sid-student", &fakeConn{}, "math101")
	_, err := o.CreateConsumerTransport(ctx, "sid-student", domain.WebcamAudio)
	require.NoError(t, err)

	desc, err := o.Consume(ctx, "sid-student", domain.WebcamAudio, nil)
	require.NoError(t, err)
	require.False(t, desc.ProducerPaused)
}

func TestConsumeSimulcastGetsPreferredLayers(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()
	eng.ConsumerType = "simulcast"
	publisherWith(t, o, "math101", domain.ScreenVideo)

	o.JoinRoom("sid-student", &fakeConn{}, "math101")
	_, err := o.CreateConsumerTransport(ctx, "sid-student", domain.ScreenVideo)
	require.NoError(t, err)

	desc, err := o.Consume(ctx, "sid-student", domain.ScreenVideo, nil)
	require.NoError(t, err)

	for _, tr := range eng.Transports {
		for _, c := range tr.Consumers {
			if c.ID() == desc.ID {
				require.Equal(t, 2, c.PreferredSpatial)
				require.Equal(t, 2, c.PreferredTempo)
			}
		}
	}
}

func TestSubscriberDisconnectCleansOnlyItsState(t *testing.T) {
	o, eng := newOrchestrator()
	publisherWith(t, o, "math101", domain.WebcamVideo)
	subscriberWith(t, o, "sid-s1", "math101", domain.WebcamVideo)
	subscriberWith(t, o, "sid-s2", "math101", domain.WebcamVideo)

	s1Rec, ok := o.Sessions.KindRecord("sid-s1", domain.WebcamVideo)
	require.True(t, ok)
	s2Rec, ok := o.Sessions.KindRecord("sid-s2", domain.WebcamVideo)
	require.True(t, ok)

	dep, ok := o.Disconnect("sid-s1")
	require.True(t, ok)
	require.Equal(t, domain.RoleSubscriber, dep.Role)
	require.False(t, dep.Ended)
	require.Equal(t, 1, dep.Count, "count decrements by exactly one")

	room, ok := o.Rooms.Room("math101")
	require.True(t, ok)

	_, ok = room.Consumer(domain.WebcamVideo, s1Rec.EntityID)
	require.False(t, ok, "departed subscriber's consumer removed")
	_, ok = room.ConsumerTransport(domain.WebcamVideo, s1Rec.TransportID)
	require.False(t, ok, "departed subscriber's transport removed")

	_, ok = room.Consumer(domain.WebcamVideo, s2Rec.EntityID)
	require.True(t, ok, "other subscriber untouched")
	_, ok = room.ConsumerTransport(domain.WebcamVideo, s2Rec.TransportID)
	require.True(t, ok)

	// The engine-side handles of the departed subscriber are closed.
	for _, tr := range eng.Transports {
		if tr.ID() == s1Rec.TransportID {
			require.True(t, tr.Closed)
		}
		if tr.ID() == s2Rec.TransportID {
			require.False(t, tr.Closed)
		}
	}
}

func TestPublisherDisconnectEndsRoom(t *testing.T) {
	o, eng := newOrchestrator()
	sid, _ := publisherWith(t, o, "math101", domain.WebcamVideo, domain.WebcamAudio)
	subscriberWith(t, o, "sid-s1", "math101", domain.WebcamVideo)

	dep, ok := o.Disconnect(sid)
	require.True(t, ok)
	require.True(t, dep.Ended)
	require.Equal(t, domain.RolePublisher, dep.Role)
	require.Equal(t, domain.RoomID("math101"), dep.Room)

	_, ok = o.Rooms.Room("math101")
	require.False(t, ok, "room gone with its publisher")

	for _, tr := range eng.Transports {
		for _, p := range tr.Producers {
			require.True(t, p.Closed, "producer %s left open", p.ID())
		}
	}
}

func TestDisconnectUnknownSession(t *testing.T) {
	o, _ := newOrchestrator()
	_, ok := o.Disconnect("sid-ghost")
	require.False(t, ok)
}

func TestRebindTearsDownPreviousBinding(t *testing.T) {
	o, _ := newOrchestrator()
	o.StartRoom("sid-teacher", &fakeConn{}, "math101")
	o.JoinRoom("sid-s1", &fakeConn{}, "math101")

	// The same identity joining another room departs the first.
	_, dep := o.JoinRoom("sid-s1", &fakeConn{}, "physics")
	require.NotNil(t, dep)
	require.Equal(t, domain.RoomID("math101"), dep.Room)
	require.Equal(t, 0, dep.Count)

	room, _, ok := o.Sessions.Lookup("sid-s1")
	require.True(t, ok)
	require.Equal(t, domain.RoomID("physics"), room)
}

func TestLastPublishWinsClosesReplaced(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()
	publisherWith(t, o, "math101", domain.ScreenVideo)

	first := eng.Transports[0].Producers[0]

	// Screen-share restart produces again on the same kind.
	secondID, err := o.Produce(ctx, "sid-teacher", domain.ScreenVideo, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), secondID)
	require.True(t, first.Closed, "replaced producer closed, not leaked")

	producers, err := o.GetProducers("sid-teacher")
	require.NoError(t, err)
	require.Equal(t, secondID, producers[domain.ScreenVideo])
}

func TestRegistryConsistencyAfterProduceAndConsume(t *testing.T) {
	o, _ := newOrchestrator()
	publisherWith(t, o, "math101", domain.WebcamVideo)
	subscriberWith(t, o, "sid-s1", "math101", domain.WebcamVideo)

	room, ok := o.Rooms.Room("math101")
	require.True(t, ok)

	// Every id the session registry recorded exists in the room.
	kr, _ := o.Sessions.KindRecord("sid-teacher", domain.WebcamVideo)
	tr, ok := room.ProducerTransport(domain.WebcamVideo)
	require.True(t, ok)
	require.Equal(t, kr.TransportID, tr.ID())
	p, ok := room.Producer(domain.WebcamVideo)
	require.True(t, ok)
	require.Equal(t, kr.EntityID, p.ID())

	kr, _ = o.Sessions.KindRecord("sid-s1", domain.WebcamVideo)
	_, ok = room.ConsumerTransport(domain.WebcamVideo, kr.TransportID)
	require.True(t, ok)
	_, ok = room.Consumer(domain.WebcamVideo, kr.EntityID)
	require.True(t, ok)
}

func TestStaleGenerationDiscardsTransport(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()
	o.StartRoom("sid-teacher", &fakeConn{}, "math101")

	// The session disconnects while the engine call is in flight.
	eng.CreateHook = func() {
		eng.CreateHook = nil
		_, _ = o.Disconnect("sid-teacher")
	}

	_, err := o.CreateProducerTransport(ctx, "sid-teacher", domain.WebcamVideo)
	require.ErrorIs(t, err, orch.ErrSessionStale)
	require.Len(t, eng.Transports, 1)
	require.True(t, eng.Transports[0].Closed, "orphaned transport closed")
}

func TestStaleGenerationDiscardsProducer(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()
	o.StartRoom("sid-teacher", &fakeConn{}, "math101")
	_, err := o.CreateProducerTransport(ctx, "sid-teacher", domain.WebcamVideo)
	require.NoError(t, err)

	// A rebind lands between the request and the engine's answer.
	eng.Transports[0].ProduceHook = func() {
		o.StartRoom("sid-teacher", &fakeConn{}, "math101")
	}

	_, err = o.Produce(ctx, "sid-teacher", domain.WebcamVideo, nil)
	require.ErrorIs(t, err, orch.ErrSessionStale)
	require.True(t, eng.Transports[0].Producers[0].Closed)
}

func TestMediaCallErrorPaths(t *testing.T) {
	o, eng := newOrchestrator()
	ctx := context.Background()

	t.Run("unbound session", func(t *testing.T) {
		_, err := o.CreateProducerTransport(ctx, "sid-ghost", domain.WebcamVideo)
		require.ErrorIs(t, err, orch.ErrNotBound)
		_, err = o.GetProducers("sid-ghost")
		require.ErrorIs(t, err, orch.ErrNotBound)
	})

	publisherWith(t, o, "math101")
	o.JoinRoom("sid-student", &fakeConn{}, "math101")

	t.Run("role mismatch", func(t *testing.T) {
		_, err := o.CreateProducerTransport(ctx, "sid-student", domain.WebcamVideo)
		require.ErrorIs(t, err, orch.ErrNotPublisher)
		_, err = o.CreateConsumerTransport(ctx, "sid-teacher", domain.WebcamVideo)
		require.ErrorIs(t, err, orch.ErrNotSubscriber)
	})

	t.Run("produce before transport", func(t *testing.T) {
		_, err := o.Produce(ctx, "sid-teacher", domain.WebcamVideo, nil)
		require.ErrorIs(t, err, orch.ErrNoTransport)
	})

	t.Run("consume before produce", func(t *testing.T) {
		_, err := o.CreateConsumerTransport(ctx, "sid-student", domain.WebcamVideo)
		require.NoError(t, err)
		_, err = o.Consume(ctx, "sid-student", domain.WebcamVideo, nil)
		require.ErrorIs(t, err, orch.ErrNoProducer)
	})

	t.Run("resume before consume", func(t *testing.T) {
		require.ErrorIs(t, o.Resume(ctx, "sid-student", domain.WebcamVideo), orch.ErrNoConsumer)
	})

	t.Run("incompatible capabilities", func(t *testing.T) {
		_, err := o.CreateProducerTransport(ctx, "sid-teacher", domain.WebcamVideo)
		require.NoError(t, err)
		_, err = o.Produce(ctx, "sid-teacher", domain.WebcamVideo, nil)
		require.NoError(t, err)

		eng.CanConsumeFn = func(string, json.RawMessage) bool { return false }
		_, err = o.Consume(ctx, "sid-student", domain.WebcamVideo, nil)
		require.ErrorIs(t, err, orch.ErrCannotConsume)
	})
}

func TestBroadcastKicksSlowMember(t *testing.T) {
	o, _ := newOrchestrator()
	slow := &fakeConn{Full: true}
	healthy := &fakeConn{}

	o.Fabric.Join("math101", "sid-slow", slow)
	o.Fabric.Join("math101", "sid-ok", healthy)

	o.Broadcast("math101", "sid-sender", core.Frame(`{"type":"x"}`))

	require.True(t, slow.Closed, "slow member kicked")
	require.Equal(t, 1, o.Fabric.Members("math101"))
	require.Len(t, healthy.Frames, 1)
}
