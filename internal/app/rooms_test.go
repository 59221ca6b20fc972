package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media/mediatest"
)

func makeProducer(t *testing.T, eng *mediatest.Engine) (media.Transport, media.Producer) {
	t.Helper()
	tr, err := eng.CreateTransport(context.Background())
	require.NoError(t, err)
	p, err := tr.Produce(context.Background(), "video", nil)
	require.NoError(t, err)
	return tr, p
}

func TestStartRoomResetsState(t *testing.T) {
	eng := mediatest.NewEngine()
	reg := app.NewRoomRegistry()

	reg.StartRoom("math101")
	_, p := makeProducer(t, eng)
	_, err := reg.SetProducer("math101", domain.WebcamVideo, p)
	require.NoError(t, err)
	reg.IncrementParticipant("math101")

	// Restart discards everything: empty slots, zero participants.
	room := reg.StartRoom("math101")
	require.Empty(t, room.Producers())
	require.Equal(t, 0, room.Participants())
}

func TestInstallIntoUnknownRoomFails(t *testing.T) {
	eng := mediatest.NewEngine()
	reg := app.NewRoomRegistry()
	tr, p := makeProducer(t, eng)

	_, err := reg.SetProducer("ghost", domain.WebcamVideo, p)
	require.ErrorIs(t, err, app.ErrRoomNotFound)
	_, err = reg.SetProducerTransport("ghost", domain.WebcamVideo, tr)
	require.ErrorIs(t, err, app.ErrRoomNotFound)
	require.ErrorIs(t, reg.AddConsumerTransport("ghost", domain.WebcamVideo, tr), app.ErrRoomNotFound)
}

func TestRemovalsOnUnknownRoomAreNoOps(t *testing.T) {
	reg := app.NewRoomRegistry()
	require.Nil(t, reg.RemoveProducer("ghost", domain.WebcamVideo))
	require.Nil(t, reg.RemoveConsumer("ghost", domain.WebcamVideo, "consumer-1"))
	require.Nil(t, reg.RemoveConsumerTransport("ghost", domain.WebcamVideo, "transport-1"))
	require.Equal(t, 0, reg.DecrementParticipant("ghost"))
}

func TestProducersSnapshotForUnknownRoomIsEmpty(t *testing.T) {
	reg := app.NewRoomRegistry()
	snap := reg.Producers("ghost")
	require.NotNil(t, snap)
	require.Empty(t, snap)
}

func TestJoinBeforeStartCreatesCounter(t *testing.T) {
	reg := app.NewRoomRegistry()

	// Students may arrive before the teacher.
	require.Equal(t, 1, reg.IncrementParticipant("math101"))
	require.Equal(t, 2, reg.IncrementParticipant("math101"))

	room, ok := reg.Room("math101")
	require.True(t, ok)
	require.Equal(t, 2, room.Participants())

	// The teacher's room-start resets the counter by overwrite.
	reg.StartRoom("math101")
	room, _ = reg.Room("math101")
	require.Equal(t, 0, room.Participants())
}

func TestStopRoomReturnsRoomOnce(t *testing.T) {
	reg := app.NewRoomRegistry()
	reg.StartRoom("math101")

	room, ok := reg.StopRoom("math101")
	require.True(t, ok)
	require.NotNil(t, room)

	_, ok = reg.StopRoom("math101")
	require.False(t, ok)
	_, ok = reg.Room("math101")
	require.False(t, ok)
}
